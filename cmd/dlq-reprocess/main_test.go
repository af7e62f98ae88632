package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

func noEnv(string) string { return "" }

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags([]string{"-brokers", " k1:9092, ,k2:9092 "}, noEnv)
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, opts.brokers)
	require.Equal(t, kafka.TopicDeadLetterQueue, opts.source)
	require.Empty(t, opts.target)
	require.Equal(t, 100, opts.limit)
	require.Equal(t, 2*time.Second, opts.idle)
	require.False(t, opts.execute)
	require.True(t, opts.wants("anything"))
}

func TestParseFlags_BrokersFromEnvironment(t *testing.T) {
	env := map[string]string{brokersEnv: "kafka:29092"}
	opts, err := parseFlags([]string{
		"-event-types", "PaymentSucceeded, OrderConfirmed",
		"-target-topic", "checkout.replay",
		"-execute", "-from-newest", "-limit", "7",
	}, func(key string) string { return env[key] })
	require.NoError(t, err)

	require.Equal(t, []string{"kafka:29092"}, opts.brokers)
	require.Equal(t, "checkout.replay", opts.target)
	require.Equal(t, 7, opts.limit)
	require.True(t, opts.execute)
	require.True(t, opts.fromNewest)
	require.True(t, opts.wants("OrderConfirmed"))
	require.False(t, opts.wants("OrderCancelled"))
}

func TestParseFlags_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no brokers", args: nil, want: brokersEnv},
		{name: "empty source", args: []string{"-brokers", "k:1", "-source-topic", " "}, want: "-source-topic"},
		{name: "loop to source", args: []string{"-brokers", "k:1", "-target-topic", kafka.TopicDeadLetterQueue}, want: "must differ"},
		{name: "zero limit", args: []string{"-brokers", "k:1", "-limit", "0"}, want: "-limit"},
		{name: "zero idle", args: []string{"-brokers", "k:1", "-idle-timeout", "0s"}, want: "-idle-timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFlags(tc.args, noEnv)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags([]string{"-h"}, noEnv)
	require.ErrorIs(t, err, flag.ErrHelp)
}
