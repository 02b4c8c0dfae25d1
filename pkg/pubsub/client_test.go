package pubsub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/crewplanner-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	c := &Client{projectID: "crew-dev"}

	require.Equal(t, "projects/crew-dev/topics/domain", c.resourceName(kindTopic, " domain "))
	require.Equal(t, "projects/other/topics/domain", c.resourceName(kindTopic, "projects/other/topics/domain"))
	require.Equal(t, "projects/crew-dev/subscriptions/planner", c.resourceName(kindSubscription, "planner"))
	require.Equal(t, "projects/other/subscriptions/planner", c.resourceName(kindSubscription, "projects/other/subscriptions/planner"))
	require.Empty(t, c.resourceName(kindTopic, ""))
	require.Empty(t, (&Client{}).resourceName(kindTopic, "domain"))

	var nilClient *Client
	require.Empty(t, nilClient.resourceName(kindSubscription, "planner"))
	require.Nil(t, nilClient.Publisher("domain"))
}

func TestClientOptions(t *testing.T) {
	require.Empty(t, clientOptions(config.GCPConfig{ProjectID: "crew-dev"}))
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}), 1)
}

func TestDescribeLookup(t *testing.T) {
	require.NoError(t, describeLookup(kindTopic, "domain", nil))
	require.EqualError(t, describeLookup(kindTopic, "domain", status.Error(codes.NotFound, "gone")), `pubsub topic "domain" does not exist`)

	err := describeLookup(kindSubscription, "planner", errors.New("unavailable"))
	require.EqualError(t, err, `pubsub subscription "planner": unavailable`)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(t.Context(), config.GCPConfig{}, config.PubSubConfig{DomainTopic: "domain"}, nil)
	require.EqualError(t, err, "gcp project id required")

	_, err = NewClient(t.Context(), config.GCPConfig{ProjectID: "crew-dev"}, config.PubSubConfig{}, nil)
	require.EqualError(t, err, "pubsub domain topic required")
}

func TestPingRequiresClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.Ping(t.Context()), errNotInitialized)
}
