package checkedit

import (
	"context"
	"io"
	"os"
	"strings"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"bitbucket.org/zamonsoft/checkedit_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

type RunPubSubPayload struct {
	RequestedBy string `json:"requested_by"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PublishRunRequest queues a batch run through Pub/Sub so Cloud
// Scheduler (or anything else) can trigger work without holding an HTTP
// connection open for the whole batch.
func PublishRunRequest(ctx context.Context, requestedBy string) error {
	topicName := strings.TrimSpace(os.Getenv("CHECKEDIT_RUN_TOPIC"))
	if topicName == "" {
		topicName = "checkedit-run"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("CHECKEDIT_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, err := utils.MarshalToJSON(RunPubSubPayload{RequestedBy: requestedBy})
	if err != nil {
		return err
	}
	res := topic.Publish(ctx, &pubsub.Message{Data: []byte(data)})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler receives the push subscription. It always answers
// 204: a batch failure must not make Pub/Sub redeliver, retries are the
// queue's own job.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := utils.UnmarshalFromJSON(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload RunPubSubPayload
		if err := utils.UnmarshalFromJSON(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}

		_, _ = RunBatch(c.Request.Context(), models.WorkerTriggeredPubSub)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
