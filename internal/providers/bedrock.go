package providers

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

const bedrockDefaultRegion = "us-east-1"

// BedrockClient calls Anthropic models hosted on AWS Bedrock.
type BedrockClient struct {
	messagesCore
	region string
}

// NewBedrockClient builds a client with static credentials when an access key pair is given,
// otherwise the default AWS credential chain is used.
func NewBedrockClient(ctx context.Context, cfg ProviderConfig) (*BedrockClient, error) {
	cfg.Identity = models.ProviderBedrock
	region := cfg.Region
	if region == "" {
		region = bedrockDefaultRegion
	}
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		return nil, eris.New("bedrock requires both an access key id and a secret access key")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.APIKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load AWS config")
	}

	return &BedrockClient{
		messagesCore: newMessagesCore(cfg, bedrock.WithConfig(awsCfg)),
		region:       region,
	}, nil
}

// Region returns the AWS region requests are signed for
func (c *BedrockClient) Region() string { return c.region }
