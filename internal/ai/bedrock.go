// Package ai holds the hosted-model gateways: text completion over a
// closed set of Bedrock backends, and text embedding.
package ai

import (
	"errors"

	"github.com/aws/aws-sdk-go/service/bedrockruntime/bedrockruntimeiface"
)

var (
	// ErrUnsupportedBackend marks an unrecognized backend key.
	ErrUnsupportedBackend = errors.New("unsupported model backend")
	// ErrBackendUnavailable marks a transport or service failure while
	// invoking a model backend.
	ErrBackendUnavailable = errors.New("model backend unavailable")
	// ErrEmbedding marks a failed embedding call.
	ErrEmbedding = errors.New("embedding request failed")
)

// Turn is one prior conversation turn handed to prompt formatting.
type Turn struct {
	Role    string
	Content string
}

// ModelIDs maps the backend variants and the embedder to Bedrock model ids.
type ModelIDs struct {
	Claude    string
	Titan     string
	Embedding string
}

// Client invokes hosted models through the Bedrock runtime. Generation is
// deterministic (temperature zero) so repeated prompts reproduce replies.
type Client struct {
	runtime bedrockruntimeiface.BedrockRuntimeAPI
	models  ModelIDs
}

func NewClient(runtime bedrockruntimeiface.BedrockRuntimeAPI, models ModelIDs) *Client {
	return &Client{runtime: runtime, models: models}
}
