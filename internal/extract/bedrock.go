package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ppiankov/tributeguard/internal/schema"
)

// BedrockConfig holds AWS parameters. Static keys are optional; without
// them the default credential chain is used.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// converser is the subset of the Bedrock runtime client used here.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock extracts through the Bedrock Converse API. The output schema is
// declared as the input schema of a single tool the model is forced to call.
type Bedrock struct {
	client converser
}

// NewBedrock loads AWS configuration and creates a Bedrock extractor.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Bedrock{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// Extract runs one Converse call and returns the forced tool input as JSON.
func (b *Bedrock) Extract(ctx context.Context, call Call) ([]byte, error) {
	schemaMap, err := schemaDocument(call)
	if err != nil {
		return nil, err
	}

	name := call.SchemaName
	if name == "" {
		name = schema.Name
	}

	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(call.Model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: call.System},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: call.Prompt},
				},
			},
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{
				&types.ToolMemberToolSpec{Value: types.ToolSpecification{
					Name:        aws.String(name),
					Description: aws.String("Record the words or phrases that are inappropriate for memorial content."),
					InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaMap)},
				}},
			},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(name)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrock converse: response carries no message")
	}

	for _, block := range msg.Value.Content {
		toolUse, ok := block.(*types.ContentBlockMemberToolUse)
		if !ok || aws.ToString(toolUse.Value.Name) != name {
			continue
		}
		if toolUse.Value.Input == nil {
			return nil, errors.New("bedrock converse: tool call has no input")
		}
		raw, err := toolUse.Value.Input.MarshalSmithyDocument()
		if err != nil {
			return nil, fmt.Errorf("bedrock converse: decode tool input: %w", err)
		}
		return raw, nil
	}

	return nil, fmt.Errorf("%w: no %s tool call (stop reason %s)", ErrRefused, name, out.StopReason)
}
