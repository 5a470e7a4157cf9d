// Package aws provisions the EC2 network, compute, load balancing, and RDS
// resource types against real AWS APIs.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/smithy-go"

	"github.com/caisson-io/caisson/internal/provider"
)

type Provider struct {
	ec2Client   *ec2.Client
	elbv2Client *elasticloadbalancingv2.Client
	rdsClient   *rds.Client
}

func New() provider.Provider {
	return &Provider{}
}

// Configure loads AWS credentials the SDK way. The provider block may pin
// region and profile; everything else comes from the environment.
func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	var opts []func(*config.LoadOptions) error
	if region := settings["region"]; region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if profile := settings["profile"]; profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	p.ec2Client = ec2.NewFromConfig(cfg)
	p.elbv2Client = elasticloadbalancingv2.NewFromConfig(cfg)
	p.rdsClient = rds.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	switch resourceType {
	case "aws_vpc":
		return &provider.ResourceSchema{
			Immutable: []string{"cidr_block"},
			Computed:  []string{"id"},
		}, nil
	case "aws_subnet":
		return &provider.ResourceSchema{
			Immutable: []string{"vpc_id", "cidr_block", "availability_zone"},
			Computed:  []string{"id"},
		}, nil
	case "aws_internet_gateway":
		return &provider.ResourceSchema{
			Computed: []string{"id"},
		}, nil
	case "aws_route_table":
		return &provider.ResourceSchema{
			Immutable: []string{"vpc_id", "routes", "subnet_ids"},
			Computed:  []string{"id"},
		}, nil
	case "aws_security_group":
		return &provider.ResourceSchema{
			Immutable: []string{"name", "description", "vpc_id"},
			Computed:  []string{"id"},
		}, nil
	case "aws_instance":
		return &provider.ResourceSchema{
			Immutable: []string{"ami", "instance_type", "subnet_id", "key_name", "user_data"},
			Computed:  []string{"id", "public_ip", "private_ip"},
		}, nil
	case "aws_lb":
		return &provider.ResourceSchema{
			Immutable: []string{"name", "type", "scheme", "subnets"},
			Computed:  []string{"id", "arn", "dns_name", "zone_id"},
		}, nil
	case "aws_lb_target_group":
		return &provider.ResourceSchema{
			Immutable: []string{"name", "port", "protocol", "vpc_id", "target_type"},
			Computed:  []string{"id", "arn"},
		}, nil
	case "aws_lb_listener":
		return &provider.ResourceSchema{
			Immutable: []string{"load_balancer_arn"},
			Computed:  []string{"id", "arn"},
		}, nil
	case "aws_db_subnet_group":
		return &provider.ResourceSchema{
			Immutable: []string{"name"},
			Computed:  []string{"id", "arn"},
		}, nil
	case "aws_db_instance":
		return &provider.ResourceSchema{
			Immutable: []string{"identifier", "engine", "username", "db_subnet_group_name"},
			Sensitive: []string{"password"},
			Computed:  []string{"id", "arn", "address", "port", "endpoint"},
		}, nil
	}
	return nil, fmt.Errorf("unknown resource type: %s", resourceType)
}

func (p *Provider) Create(ctx context.Context, resourceType string, attrs map[string]any) (string, map[string]any, error) {
	switch resourceType {
	case "aws_vpc":
		return p.createVpc(ctx, attrs)
	case "aws_subnet":
		return p.createSubnet(ctx, attrs)
	case "aws_internet_gateway":
		return p.createInternetGateway(ctx, attrs)
	case "aws_route_table":
		return p.createRouteTable(ctx, attrs)
	case "aws_security_group":
		return p.createSecurityGroup(ctx, attrs)
	case "aws_instance":
		return p.createInstance(ctx, attrs)
	case "aws_lb":
		return p.createLoadBalancer(ctx, attrs)
	case "aws_lb_target_group":
		return p.createTargetGroup(ctx, attrs)
	case "aws_lb_listener":
		return p.createListener(ctx, attrs)
	case "aws_db_subnet_group":
		return p.createDBSubnetGroup(ctx, attrs)
	case "aws_db_instance":
		return p.createDBInstance(ctx, attrs)
	}
	return "", nil, fmt.Errorf("unknown resource type: %s", resourceType)
}

func (p *Provider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	switch resourceType {
	case "aws_vpc":
		return p.readVpc(ctx, id)
	case "aws_subnet":
		return p.readSubnet(ctx, id)
	case "aws_internet_gateway":
		return p.readInternetGateway(ctx, id)
	case "aws_route_table":
		return p.readRouteTable(ctx, id)
	case "aws_security_group":
		return p.readSecurityGroup(ctx, id)
	case "aws_instance":
		return p.readInstance(ctx, id)
	case "aws_lb":
		return p.readLoadBalancer(ctx, id)
	case "aws_lb_target_group":
		return p.readTargetGroup(ctx, id)
	case "aws_lb_listener":
		return p.readListener(ctx, id)
	case "aws_db_subnet_group":
		return p.readDBSubnetGroup(ctx, id)
	case "aws_db_instance":
		return p.readDBInstance(ctx, id)
	}
	return nil, fmt.Errorf("unknown resource type: %s", resourceType)
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, attrs, prior map[string]any) (map[string]any, error) {
	switch resourceType {
	case "aws_vpc":
		return p.updateVpc(ctx, id, attrs, prior)
	case "aws_subnet":
		return p.updateSubnet(ctx, id, attrs, prior)
	case "aws_internet_gateway":
		return p.updateInternetGateway(ctx, id, attrs, prior)
	case "aws_route_table":
		return p.updateRouteTable(ctx, id, attrs, prior)
	case "aws_security_group":
		return p.updateSecurityGroup(ctx, id, attrs, prior)
	case "aws_instance":
		return p.updateInstance(ctx, id, attrs, prior)
	case "aws_lb":
		return p.updateLoadBalancer(ctx, id, attrs, prior)
	case "aws_lb_target_group":
		return p.updateTargetGroup(ctx, id, attrs, prior)
	case "aws_lb_listener":
		return p.updateListener(ctx, id, attrs, prior)
	case "aws_db_subnet_group":
		return p.updateDBSubnetGroup(ctx, id, attrs, prior)
	case "aws_db_instance":
		return p.updateDBInstance(ctx, id, attrs, prior)
	}
	return nil, fmt.Errorf("%s does not support in-place updates", resourceType)
}

func (p *Provider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	switch resourceType {
	case "aws_vpc":
		return p.deleteVpc(ctx, id)
	case "aws_subnet":
		return p.deleteSubnet(ctx, id)
	case "aws_internet_gateway":
		return p.deleteInternetGateway(ctx, id, prior)
	case "aws_route_table":
		return p.deleteRouteTable(ctx, id)
	case "aws_security_group":
		return p.deleteSecurityGroup(ctx, id)
	case "aws_instance":
		return p.deleteInstance(ctx, id)
	case "aws_lb":
		return p.deleteLoadBalancer(ctx, id)
	case "aws_lb_target_group":
		return p.deleteTargetGroup(ctx, id)
	case "aws_lb_listener":
		return p.deleteListener(ctx, id)
	case "aws_db_subnet_group":
		return p.deleteDBSubnetGroup(ctx, id)
	case "aws_db_instance":
		return p.deleteDBInstance(ctx, id, prior)
	}
	return fmt.Errorf("unknown resource type: %s", resourceType)
}

// isAWSErr reports whether err carries one of the given API error codes.
func isAWSErr(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, code := range codes {
		if ae.ErrorCode() == code {
			return true
		}
	}
	return false
}
