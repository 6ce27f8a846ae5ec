package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelString(t *testing.T) {
	assert.Equal(t, "control", Control.String())
	assert.Equal(t, "broadcast", Broadcast.String())
	assert.Equal(t, "unknown", Channel(9).String())
}

func TestMsgTypeIsComm(t *testing.T) {
	assert.True(t, MsgType("comm_open").IsComm())
	assert.True(t, MsgType("comm_msg").IsComm())
	assert.False(t, MsgStream.IsComm())
}
