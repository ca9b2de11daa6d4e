package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	d := NewDecoder(3)
	tests := []struct {
		line string
		post int
		ok   bool
		form string
	}{
		{`{"poste":2,"etat":"piece_detectee"}`, 2, true, "json"},
		{`{"poste":2,"etat":"ras"}`, 0, false, ""},
		{`{"post":1}`, 1, true, "json"},
		{`{"postIndex":"3","etat":"Pièce Détectée"}`, 3, true, "json"},
		{`{"p":3,"etat":"PIECE-DETECTED"}`, 3, true, "json"},
		{`{"poste":4}`, 0, false, ""},
		{`{"poste":1.5}`, 0, false, ""},
		{`{"etat":"piece_detectee"}`, 0, false, ""},
		{`{"poste":2,"etat":42}`, 0, false, ""},
		{"poste-2", 2, true, "text"},
		{"POST:3", 3, true, "text"},
		{"p#1", 1, true, "text"},
		{"sensor poste = 2 ok", 2, true, "text"},
		{"poste 9", 0, false, ""},
		{"  1  ", 1, true, "bare"},
		{"0", 0, false, ""},
		{"12", 0, false, ""},
		{"hello", 0, false, ""},
		{"", 0, false, ""},
		{"{broken json", 0, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := d.Decode(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.post, got.Post)
				assert.Equal(t, tt.form, got.Form)
			}
		})
	}
}

func TestDecodeGeneralizesToRouteLength(t *testing.T) {
	d := NewDecoder(12)
	got, ok := d.Decode("poste-11")
	require.True(t, ok)
	assert.Equal(t, 11, got.Post)

	got, ok = d.Decode("12")
	require.True(t, ok)
	assert.Equal(t, 12, got.Post)
}

func TestDecodeDebugLogsDroppedLines(t *testing.T) {
	var logged []string
	d := NewDecoder(3)
	d.DebugLog = func(format string, args ...any) { logged = append(logged, format) }
	_, ok := d.Decode("garbage")
	assert.False(t, ok)
	assert.Len(t, logged, 1)
}

func TestIsPieceDetected(t *testing.T) {
	assert.True(t, IsPieceDetected("piece_detectee"))
	assert.True(t, IsPieceDetected("Pièce détectée"))
	assert.True(t, IsPieceDetected("piece detected"))
	assert.False(t, IsPieceDetected("detect piece"))
	assert.False(t, IsPieceDetected("piece absente"))
	assert.False(t, IsPieceDetected(""))
}

func TestEncodeInstruction(t *testing.T) {
	data, err := Encode(NewInstruction(true, map[int]string{1: "wait"}), "\n")
	require.NoError(t, err)
	assert.Equal(t, "{\"mat_p\":1,\"mant\":{\"1\":\"wait\"}}\n", string(data))
}

func TestEncodeInstructionOptionalFields(t *testing.T) {
	ins := NewInstruction(false, map[int]string{2: "go", 1: "stop"}).
		WithCommand("start").
		WithOrder("OF-7")
	data, err := Encode(ins, "\r\n")
	require.NoError(t, err)
	assert.Equal(t, "{\"mat_p\":0,\"mant\":{\"1\":\"stop\",\"2\":\"go\"},\"cmd\":\"start\",\"of\":\"OF-7\"}\r\n", string(data))

	data, err = Encode(Instruction{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mat_p":0,"mant":{}}`, string(data))
}
