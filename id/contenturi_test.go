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

func TestParseContentURI(t *testing.T) {
	parsed, err := id.ParseContentURI("mxc://example.org/abc123")
	require.NoError(t, err)
	assert.Equal(t, "example.org", parsed.Homeserver)
	assert.Equal(t, "abc123", parsed.FileID)
	assert.Equal(t, "mxc://example.org/abc123", parsed.String())
}

func TestParseContentURI_AutoFragment(t *testing.T) {
	parsed, err := id.ParseContentURI("mxc://example.org/abc123#auto")
	require.NoError(t, err)
	assert.Equal(t, "example.org", parsed.Homeserver)
	assert.Equal(t, "abc123", parsed.FileID)
}

func TestParseContentURI_Invalid(t *testing.T) {
	for _, input := range []string{"", "not-a-ref", "https://example.org/abc", "mxc://example.org", "mxc://example.org/"} {
		_, err := id.ParseContentURI(input)
		assert.ErrorIs(t, err, id.InvalidContentURI, "input %q", input)
	}
}

func TestContentURIString_Parse(t *testing.T) {
	parsed, err := id.ContentURIString("mxc://example.org/def456").Parse()
	require.NoError(t, err)
	assert.Equal(t, "def456", parsed.FileID)
	assert.False(t, parsed.IsEmpty())
}
