package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/artpar/launchpad/internal/core/domain"
)

const awsDefaultRegion = "us-east-1"

// AWSAdapter deploys to EC2 instances bootstrapped via user data.
type AWSAdapter struct {
	accessKeyID     string
	secretAccessKey string
	region          string
	logger          *slog.Logger
}

// NewAWSAdapter creates a new AWS EC2 adapter.
func NewAWSAdapter(accessKeyID, secretAccessKey, region string, logger *slog.Logger) *AWSAdapter {
	if region == "" {
		region = awsDefaultRegion
	}
	return &AWSAdapter{
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		region:          region,
		logger:          logger.With("provider", "aws"),
	}
}

func (a *AWSAdapter) Type() domain.ProviderType {
	return domain.ProviderAWS
}

func (a *AWSAdapter) newClient() *ec2.Client {
	return ec2.New(ec2.Options{
		Region:      a.region,
		Credentials: credentials.NewStaticCredentialsProvider(a.accessKeyID, a.secretAccessKey, ""),
	})
}

// ValidateCredential checks the key pair by describing regions.
func (a *AWSAdapter) ValidateCredential(ctx context.Context) (string, error) {
	client := a.newClient()
	_, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("opt-in-status"), Values: []string{"opt-in-not-required", "opted-in"}},
		},
	})
	if err != nil {
		return "", a.classify(err, "", "failed to describe regions")
	}
	return fmt.Sprintf("aws %s (%s)", a.accessKeyID, a.region), nil
}

// Strategies returns the EC2 strategy chain.
func (a *AWSAdapter) Strategies() []Strategy {
	return []Strategy{
		{Name: "ec2-user-data", Description: "EC2 instance bootstrapped from the repository via user data"},
		{Name: "manual-console", Description: "Manual setup via the AWS console", Manual: true},
	}
}

// Deploy runs a single EC2 strategy.
func (a *AWSAdapter) Deploy(ctx context.Context, strategy string, req DeployRequest) (*DeployResult, error) {
	switch strategy {
	case "ec2-user-data":
		return a.deployInstance(ctx, req)
	case "manual-console":
		return &DeployResult{
			SetupInstructions: "Launch an EC2 instance at https://console.aws.amazon.com/ec2, clone " +
				req.Repository.URL + " on branch " + req.Repository.Branch + ", and start the application with: " +
				req.Build.StartCommand,
		}, nil
	default:
		return nil, NewError(KindFatal, "aws", strategy, "unknown strategy", nil)
	}
}

func (a *AWSAdapter) deployInstance(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if req.Build.StartCommand == "" {
		return nil, NewError(KindCapability, "aws", "ec2-user-data", "workload has no start command", nil)
	}

	client := a.newClient()

	ami, err := a.latestUbuntuAMI(ctx, client)
	if err != nil {
		return nil, err
	}

	userData := base64.StdEncoding.EncodeToString([]byte(bootstrapScript(req)))

	runOut, err := client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      ami,
		InstanceType: ec2types.InstanceTypeT3Micro,
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		UserData:     aws.String(userData),
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String(req.ProjectName)},
					{Key: aws.String("ManagedBy"), Value: aws.String("launchpad")},
					{Key: aws.String("Deployment"), Value: aws.String(req.DeploymentID)},
				},
			},
		},
	})
	if err != nil {
		return nil, a.classify(err, "ec2-user-data", "failed to launch instance")
	}
	if len(runOut.Instances) == 0 {
		return nil, NewError(KindFatal, "aws", "ec2-user-data", "no instance returned from RunInstances", nil)
	}

	instanceID := aws.ToString(runOut.Instances[0].InstanceId)
	a.logger.Info("instance launched", "instance_id", instanceID, "deployment_id", req.DeploymentID)

	publicIP, err := a.waitForPublicIP(ctx, client, instanceID)
	if err != nil {
		return nil, a.classify(err, "ec2-user-data", "failed waiting for public IP")
	}
	return &DeployResult{LiveURL: "http://" + publicIP}, nil
}

func (a *AWSAdapter) latestUbuntuAMI(ctx context.Context, client *ec2.Client) (*string, error) {
	amiOut, err := client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("name"), Values: []string{"ubuntu/images/hvm-ssd-gp3/ubuntu-noble-24.04-amd64-server-*"}},
			{Name: aws.String("state"), Values: []string{"available"}},
		},
		Owners: []string{"099720109477"}, // Canonical
	})
	if err != nil {
		return nil, a.classify(err, "ec2-user-data", "failed to find Ubuntu AMI")
	}
	if len(amiOut.Images) == 0 {
		return nil, NewError(KindCapability, "aws", "ec2-user-data", "no Ubuntu AMI available in region", nil)
	}

	ami := amiOut.Images[0]
	for _, img := range amiOut.Images[1:] {
		if aws.ToString(img.CreationDate) > aws.ToString(ami.CreationDate) {
			ami = img
		}
	}
	return ami.ImageId, nil
}

func (a *AWSAdapter) waitForPublicIP(ctx context.Context, client *ec2.Client, instanceID string) (string, error) {
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			continue
		}

		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				if inst.PublicIpAddress != nil && *inst.PublicIpAddress != "" {
					return *inst.PublicIpAddress, nil
				}
			}
		}
	}
	return "", errors.New("timed out waiting for public IP")
}

// classify maps smithy API errors onto the shared error kinds.
func (a *AWSAdapter) classify(err error, strategy, message string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		var kind ErrorKind
		switch apiErr.ErrorCode() {
		case "AuthFailure", "UnauthorizedOperation", "InvalidClientTokenId", "SignatureDoesNotMatch":
			kind = KindAuth
		case "RequestLimitExceeded", "Throttling", "ThrottlingException", "Unavailable", "InternalError":
			kind = KindTransient
		case "InvalidParameterValue", "InvalidAMIID.NotFound", "InstanceLimitExceeded", "InsufficientInstanceCapacity", "Unsupported":
			kind = KindCapability
		default:
			kind = KindFatal
		}
		return NewError(kind, "aws", strategy, fmt.Sprintf("%s: %s", message, apiErr.ErrorMessage()), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetworkError(err) {
		return NewError(KindTransient, "aws", strategy, message, err)
	}
	return NewError(KindFatal, "aws", strategy, message, err)
}
