package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// Config loading depends on this interface rather than the concrete *Client
// so it stays testable without real AWS calls.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval. Relative names are
// resolved under prefix, e.g. "openai-api-key" becomes
// "/realestate-bot/openai-api-key".
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, prefix: strings.TrimSpace(prefix)}, nil
}

func (c *Client) resolve(name string) string {
	if strings.HasPrefix(name, "/") || c.prefix == "" {
		return name
	}
	return path.Join("/", c.prefix, name)
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	name = c.resolve(name)

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// Secret fetches name and unwraps it. Values stored as {"token":"..."} yield
// the token; any other value, including JSON documents without a token
// field, is returned trimmed as-is.
func Secret(ctx context.Context, g Getter, name string) (string, error) {
	if g == nil {
		return "", errors.New("paramstore: getter must not be nil")
	}
	raw, err := g.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("paramstore: secret %q is empty", name)
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal secret %q: %w", name, err)
	}
	wrapped, ok := fields["token"]
	if !ok {
		return raw, nil
	}
	var token string
	if err := json.Unmarshal(wrapped, &token); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token of secret %q: %w", name, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("paramstore: secret %q has empty token", name)
	}
	return token, nil
}
