// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package id_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-im/perch/id"
)

func TestParseRoomIdentifier(t *testing.T) {
	ident, err := id.ParseRoomIdentifier("!room:example.org")
	require.NoError(t, err)
	assert.Equal(t, id.RoomID("!room:example.org"), ident)

	ident, err = id.ParseRoomIdentifier("#room:example.org")
	require.NoError(t, err)
	assert.Equal(t, id.RoomAlias("#room:example.org"), ident)
}

func TestParseRoomIdentifier_Invalid(t *testing.T) {
	for _, input := range []string{"", "!", "#", "room:example.org", "@user:example.org"} {
		_, err := id.ParseRoomIdentifier(input)
		assert.ErrorIs(t, err, id.ErrInvalidRoomIdentifier, "input %q", input)
	}
}
