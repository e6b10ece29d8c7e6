package infra

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaConfig(t *testing.T) {
	cfg := NewKafkaConfig("cargoquote-test")
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "cargoquote-test", cfg.ClientID)
	assert.True(t, cfg.Consumer.Return.Errors, "group.Errors() must be fed")
	assert.True(t, cfg.Producer.Return.Successes, "sync producer needs successes")
	assert.Equal(t, sarama.OffsetNewest, cfg.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.WaitForLocal, cfg.Producer.RequiredAcks)
}
