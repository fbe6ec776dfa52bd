package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		wantErr  error
	}{
		{name: "minimal", raw: `{"type":"chat"}`, wantType: "chat"},
		{name: "with payload", raw: `{"type":"cursor","x":1,"y":[2,3]}`, wantType: "cursor"},
		{name: "not json", raw: `nope`, wantErr: errNotJSON},
		{name: "empty input", raw: ``, wantErr: errNotJSON},
		{name: "array", raw: `[]`, wantErr: errNotObject},
		{name: "number", raw: `42`, wantErr: errNotObject},
		{name: "null", raw: `null`, wantErr: errNotObject},
		{name: "missing type", raw: `{"data":1}`, wantErr: errMissingType},
		{name: "empty type", raw: `{"type":""}`, wantErr: errMissingType},
		{name: "object type", raw: `{"type":{"a":1}}`, wantErr: errMissingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, env)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Type)
		})
	}
}

func TestEnvelope_StampKeepsFields(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"op","ops":[{"i":1}],"meta":{"v":"x"},"connectionId":"forged","timestamp":"old"}`))
	require.NoError(t, err)

	out, err := env.Stamp("conn-1", 1767268800000)
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &got))
	assert.JSONEq(t, `"op"`, string(got["type"]))
	assert.JSONEq(t, `[{"i":1}]`, string(got["ops"]))
	assert.JSONEq(t, `{"v":"x"}`, string(got["meta"]))
	assert.JSONEq(t, `"conn-1"`, string(got["connectionId"]))
	assert.JSONEq(t, `1767268800000`, string(got["timestamp"]))
	assert.Len(t, got, 5)
}

func TestServerMessages_WireFormat(t *testing.T) {
	out, err := json.Marshal(ConnectedMessage{
		Type:         TypeConnected,
		ConnectionID: "c1",
		RoomID:       "doc1",
		UserCount:    2,
		Timestamp:    10,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected","connectionId":"c1","roomId":"doc1","userCount":2,"timestamp":10}`, string(out))

	out, err = json.Marshal(ErrorMessage{Type: TypeError, Message: "bad", Code: CodeParseError, Timestamp: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"bad","code":"PARSE_ERROR","timestamp":10}`, string(out))
}
