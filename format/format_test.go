package format_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"code.hybscloud.com/rpctrace/format"
	"github.com/stretchr/testify/require"
)

func render(kind byte, data []byte, nelt, eltsize int) string {
	var sb strings.Builder
	format.Default.FormatScalar(&sb, kind, data, nelt, eltsize, binary.BigEndian)
	return sb.String()
}

func TestFormatInt(t *testing.T) {
	require.Equal(t, "7", render(format.Int, []byte{0, 0, 0, 7}, 1, 4))
}

func TestFormatIntArray(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0, 0, 0, 2}
	require.Equal(t, "{1 2}", render(format.Int, data, 2, 4))
}

func TestFormatString(t *testing.T) {
	require.Equal(t, `"hi"`, render(format.String, []byte("hi"), 2, 1))
}

func TestFormatPortArray(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0, 0, 0, 9}
	require.Equal(t, "pn{9}", render(format.PortVal, data, 1, 8))
}

func TestFormatRealFloat32(t *testing.T) {
	// 1.5f as big-endian IEEE-754 bits
	data := []byte{0x3f, 0xc0, 0x00, 0x00}
	require.Equal(t, "1.5", render(format.Real, data, 1, 4))
}

func TestFormatUnknownKindFallsBackToHexDump(t *testing.T) {
	out := render('?', []byte{0xAB}, 1, 1)
	require.Contains(t, out, "type=?")
	require.Contains(t, out, "0xab")
}
