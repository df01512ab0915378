package xmlenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrCodecs(t *testing.T) {
	e := NewElement("DSI")
	e.SetHexAttr("transaction_id", 0xCAFE0001)
	e.SetIntAttr("block_size", 4066)
	e.SetBoolAttr("current", true)

	v, ok := e.IntAttr("transaction_id", true, 0)
	assert.True(t, ok)
	assert.EqualValues(t, 0xCAFE0001, v)

	v, ok = e.IntAttr("block_size", true, 0)
	assert.True(t, ok)
	assert.EqualValues(t, 4066, v)

	b, ok := e.BoolAttr("current", false, false)
	assert.True(t, ok)
	assert.True(t, b)

	// Missing required attribute fails
	_, ok = e.IntAttr("missing", true, 0)
	assert.False(t, ok)

	// Missing optional attribute yields the default
	v, ok = e.IntAttr("missing", false, 42)
	assert.True(t, ok)
	assert.EqualValues(t, 42, v)
}

func TestHexAndDecimalAccepted(t *testing.T) {
	e := NewElement("module")
	e.SetAttr("module_id", "0x0001")
	v, ok := e.IntAttr("module_id", true, 0)
	assert.True(t, ok)
	assert.EqualValues(t, 1, v)

	e.SetAttr("module_id", "17")
	v, ok = e.IntAttr("module_id", true, 0)
	assert.True(t, ok)
	assert.EqualValues(t, 17, v)
}

func TestRoundTrip(t *testing.T) {
	root := NewElement("DSMCC_user_to_network_message")
	root.SetHexAttr("message_id", 0x1006)
	dsi := root.AddElement("DSI")
	dsi.AddHexaChild("server_id", []byte{0xFF, 0xFF, 0x01}, true)
	root.AddElement("empty")

	data, err := Marshal(root)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, root.Name, parsed.Name)

	v, ok := parsed.IntAttr("message_id", true, 0)
	assert.True(t, ok)
	assert.EqualValues(t, 0x1006, v)

	child := parsed.FindFirstChild("DSI")
	require.NotNil(t, child)
	blob, ok := child.HexaChild("server_id")
	assert.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01}, blob)
}

func TestHexaChildWhitespace(t *testing.T) {
	doc := []byte("<root><data>\n  AABB\n  CC\n</data></root>")
	root, err := Parse(doc)
	require.NoError(t, err)
	blob, ok := root.HexaChild("data")
	assert.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, blob)
}
