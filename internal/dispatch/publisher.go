package dispatch

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// PublisherFactory returns the publisher for a topic, nil when the topic is unknown.
type PublisherFactory func(topic string) Publisher

// Publisher is the part of a Pub/Sub publisher the dispatcher needs.
type Publisher interface {
	Publish(context.Context, *gcppubsub.Message) PublishResult
}

// PublishResult resolves to the server-assigned message id.
type PublishResult interface {
	Get(context.Context) (string, error)
}

func topicPublishers(client pubSubClient) PublisherFactory {
	return func(topic string) Publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return gcpResult{g.p.Publish(ctx, msg)}
}

type gcpResult struct {
	r *gcppubsub.PublishResult
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("pubsub returned no publish result")
	}
	return g.r.Get(ctx)
}
