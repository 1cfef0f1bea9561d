package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(KindStateDelta, 42, StateDelta{
		Position:   3,
		Word:       "cat",
		PlayerID:   "p1",
		ScoreDelta: 3,
	})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindStateDelta, env.Type)
	assert.Equal(t, uint64(42), env.Seq)

	var delta StateDelta
	require.NoError(t, env.DecodeData(&delta))
	assert.Equal(t, 3, delta.Position)
	assert.Equal(t, "cat", delta.Word)
	assert.Equal(t, "p1", delta.PlayerID)
	assert.Equal(t, 3, delta.ScoreDelta)
}

func TestEncodeNilPayload(t *testing.T) {
	raw, err := Encode(KindHeartbeat, 0, nil)
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, env.Type)
	assert.Empty(t, env.Data)

	var anything struct{}
	assert.Error(t, env.DecodeData(&anything))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"seq": 5}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}

func TestDecodeDataWrongShape(t *testing.T) {
	raw, err := Encode(KindMoveSubmit, 0, MoveSubmit{Token: "cat", Position: 1})
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)

	var notAnObject []string
	assert.Error(t, env.DecodeData(&notAnObject))
}

func TestSeqOmittedWhenZero(t *testing.T) {
	raw, err := Encode(KindHeartbeat, 0, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"seq"`)
}

func TestPropertyEnvelopeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.Uint64().Draw(t, "seq")
		move := MoveSubmit{
			Token:    rapid.String().Draw(t, "token"),
			Position: rapid.IntRange(0, 1<<20).Draw(t, "position"),
		}

		raw, err := Encode(KindMoveSubmit, seq, move)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		env, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Seq != seq {
			t.Fatalf("seq mismatch: sent %d got %d", seq, env.Seq)
		}
		var got MoveSubmit
		if err := env.DecodeData(&got); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if got != move {
			t.Fatalf("payload mismatch: sent %+v got %+v", move, got)
		}
	})
}
