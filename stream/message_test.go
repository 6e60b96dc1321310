package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConcreteTypes(t *testing.T) {
	cases := []struct {
		line string
		want Type
	}{
		{`{"type":"start","stages":[{"id":"a","name":"A"}]}`, TypeStart},
		{`{"type":"progress","currentStage":"a","stageProgress":40,"overallProgress":10}`, TypeProgress},
		{`{"type":"preview","stageId":"a","content":"<svg/>","contentType":"svg"}`, TypePreview},
		{`{"type":"stage_complete","stage":{"id":"a","name":"A","duration":1200,"success":true}}`, TypeStageComplete},
		{`{"type":"result","result":{"logo":"x"}}`, TypeResult},
		{`{"type":"error","message":"boom","recoverable":true}`, TypeError},
		{`{"type":"warning","message":"careful"}`, TypeWarning},
		{`{"type":"info","message":"fyi"}`, TypeInfo},
		{`{"type":"cache","cached":true,"source":"full"}`, TypeCache},
		{`{"type":"heartbeat"}`, TypeHeartbeat},
		{`{"type":"end","status":"success"}`, TypeEnd},
	}
	for _, tc := range cases {
		msg, err := Decode([]byte(tc.line))
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, msg.Kind(), tc.line)
	}
}

func TestDecodeFieldFidelity(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"progress","sessionId":"s1","timestamp":1700000000000,"currentStage":"gen","stageProgress":55,"overallProgress":40,"estimatedTimeRemaining":9000}`))
	require.NoError(t, err)

	p := msg.(*Progress)
	assert.Equal(t, "gen", p.CurrentStage)
	assert.Equal(t, 55, p.StageProgress)
	assert.Equal(t, 40, p.OverallProgress)
	require.NotNil(t, p.EstimatedTimeRemaining)
	assert.EqualValues(t, 9000, *p.EstimatedTimeRemaining)
	assert.Equal(t, "s1", p.SessionID)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"progress"`)) // truncated
	assert.Error(t, err)

	_, err = Decode([]byte(`{"progress":42}`)) // no type tag
	assert.ErrorIs(t, err, ErrNoType)

	_, err = Decode([]byte(`{"type":"mystery"}`)) // unknown tag
	assert.ErrorIs(t, err, ErrNoType)
}

func TestDecodeLegacyProgressObject(t *testing.T) {
	msg, err := DecodeLegacy([]byte(`{"progress":{"currentStage":"gen","stageProgress":30,"overallProgress":25}}`))
	require.NoError(t, err)
	p := msg.(*Progress)
	assert.Equal(t, "gen", p.CurrentStage)
	assert.Equal(t, 30, p.StageProgress)
}

func TestDecodeLegacyBareProgressNumber(t *testing.T) {
	msg, err := DecodeLegacy([]byte(`{"progress":62}`))
	require.NoError(t, err)
	p := msg.(*Progress)
	assert.Equal(t, 62, p.OverallProgress)
}

func TestDecodeLegacyPreview(t *testing.T) {
	msg, err := DecodeLegacy([]byte(`{"preview":"<svg/>"}`))
	require.NoError(t, err)
	pv := msg.(*Preview)
	assert.Equal(t, "<svg/>", pv.Content)
	assert.Equal(t, "svg", pv.ContentType)
}

func TestDecodeLegacyCompleteWithAssets(t *testing.T) {
	msg, err := DecodeLegacy([]byte(`{"complete":true,"assets":{"logo":"<svg/>"}}`))
	require.NoError(t, err)
	r := msg.(*Result)

	var assets map[string]string
	require.NoError(t, json.Unmarshal(r.Result, &assets))
	assert.Equal(t, "<svg/>", assets["logo"])
}

func TestDecodeLegacyErrorString(t *testing.T) {
	msg, err := DecodeLegacy([]byte(`{"error":"it broke"}`))
	require.NoError(t, err)
	assert.Equal(t, "it broke", msg.(*Error).Message)
}

func TestDecodeLegacyNoMatch(t *testing.T) {
	_, err := DecodeLegacy([]byte(`{"something":"else"}`))
	assert.ErrorIs(t, err, ErrNoType)
}
