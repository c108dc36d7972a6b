package dash

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_DisabledWithoutBroker(t *testing.T) {
	c, err := InitMQTT(MQTTConfig{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestInitMQTT_RequiresScheme(t *testing.T) {
	_, err := InitMQTT(MQTTConfig{Broker: "localhost:1883"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestPublishPrefixAndClientID(t *testing.T) {
	assert.Equal(t, DefaultPublishPrefix, publishPrefix(MQTTConfig{}))
	assert.Equal(t, "site/robot1", publishPrefix(MQTTConfig{PublishPrefix: "site/robot1/"}))

	assert.Equal(t, "fixed", clientID(MQTTConfig{ClientID: "fixed"}))
	a, b := clientID(MQTTConfig{}), clientID(MQTTConfig{})
	assert.True(t, strings.HasPrefix(a, "patroldash-"))
	assert.Len(t, a, len("patroldash-")+8)
	assert.NotEqual(t, a, b)
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    RemoteIntent
		wantErr bool
	}{
		{"command object", `{"command":"forward"}`, RemoteIntent{Command: "forward"}, false},
		{"mission object", `{"mission":"return"}`, RemoteIntent{Mission: "return"}, false},
		{"view object", `{"view":"video"}`, RemoteIntent{View: "video"}, false},
		{"json string", `"stop"`, RemoteIntent{Command: "stop"}, false},
		{"raw text", " left\n", RemoteIntent{Command: "left"}, false},
		{"empty object", `{}`, RemoteIntent{}, true},
		{"blank", "   ", RemoteIntent{}, true},
		{"empty json string", `""`, RemoteIntent{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMQTTClient_SubscribesOnConnectAndRoutesIntents(t *testing.T) {
	mock := NewMockClient()
	var got []RemoteIntent
	c := newMQTTClientWithMock(mock, "lab", func(in RemoteIntent) { got = append(got, in) })
	mock.SetOnConnect(c.onConnect)

	assert.False(t, c.IsConnected())
	require.NoError(t, mock.Connect().Error())
	assert.True(t, c.IsConnected())
	assert.Equal(t, "lab/cmd", c.CommandTopic())

	require.True(t, mock.SimulateMessage("lab/cmd", []byte(`{"mission":"repeat"}`)))
	require.True(t, mock.SimulateMessage("lab/cmd", []byte(`{}`)))
	require.True(t, mock.SimulateMessage("lab/cmd", []byte(`forward`)))
	assert.Equal(t, []RemoteIntent{{Mission: "repeat"}, {Command: "forward"}}, got)

	assert.False(t, mock.SimulateMessage("lab/other", []byte(`x`)))
}

func TestMQTTClient_ConnectionLostAndDisconnect(t *testing.T) {
	mock := NewMockClient()
	c := newMQTTClientWithMock(mock, "lab", nil)
	mock.SetOnConnect(c.onConnect)
	mock.Connect()

	c.onConnectionLost(mock, errors.New("broker gone"))
	assert.False(t, c.IsConnected())

	c.setConnected(true)
	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.False(t, mock.IsConnected())
	assert.Same(t, mock, c.GetClient())
}

func TestMQTTClient_ConnectWithRetrySucceeds(t *testing.T) {
	mock := NewMockClient()
	c := newMQTTClientWithMock(mock, "lab", nil)
	c.connectWithRetry()
	assert.True(t, c.IsConnected())
}
