package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/caisson-io/caisson/internal/provider"
)

const (
	instanceRunningTimeout    = 5 * time.Minute
	instanceTerminatedTimeout = 10 * time.Minute
)

func (p *Provider) createInstance(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      awssdk.String(provider.String(attrs, "ami")),
		InstanceType: types.InstanceType(provider.String(attrs, "instance_type")),
		MinCount:     awssdk.Int32(1),
		MaxCount:     awssdk.Int32(1),
	}
	if subnetID := provider.String(attrs, "subnet_id"); subnetID != "" {
		input.SubnetId = &subnetID
	}
	if groups := provider.StringSlice(attrs, "security_group_ids"); len(groups) > 0 {
		input.SecurityGroupIds = groups
	}
	if keyName := provider.String(attrs, "key_name"); keyName != "" {
		input.KeyName = &keyName
	}
	if userData := provider.String(attrs, "user_data"); userData != "" {
		input.UserData = awssdk.String(base64.StdEncoding.EncodeToString([]byte(userData)))
	}

	out, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to run instance: %w", err)
	}
	if len(out.Instances) == 0 {
		return "", nil, fmt.Errorf("no instances created")
	}
	id := awssdk.ToString(out.Instances[0].InstanceId)

	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return id, nil, err
	}

	waiter := ec2.NewInstanceRunningWaiter(p.ec2Client)
	err = waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, instanceRunningTimeout)
	if err != nil {
		return id, nil, fmt.Errorf("failed to wait for instance running: %w", err)
	}

	// IPs are assigned while the instance comes up, so look again now that
	// it is running.
	outputs, err := p.readInstance(ctx, id)
	if err != nil {
		return id, nil, err
	}
	return id, outputs, nil
}

func (p *Provider) readInstance(ctx context.Context, id string) (map[string]any, error) {
	out, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidInstanceID.NotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, provider.ErrNotFound
	}
	inst := out.Reservations[0].Instances[0]
	// Terminated instances linger in DescribeInstances for a while.
	if inst.State != nil && inst.State.Name == types.InstanceStateNameTerminated {
		return nil, provider.ErrNotFound
	}

	outputs := map[string]any{
		"id":         id,
		"public_ip":  awssdk.ToString(inst.PublicIpAddress),
		"private_ip": awssdk.ToString(inst.PrivateIpAddress),
	}
	if inst.Placement != nil {
		outputs["availability_zone"] = awssdk.ToString(inst.Placement.AvailabilityZone)
	}
	if len(inst.SecurityGroups) > 0 {
		groups := make([]any, 0, len(inst.SecurityGroups))
		for _, g := range inst.SecurityGroups {
			groups = append(groups, awssdk.ToString(g.GroupId))
		}
		outputs["security_group_ids"] = groups
	}
	return outputs, nil
}

func (p *Provider) updateInstance(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	oldGroups := provider.StringSlice(prior, "security_group_ids")
	newGroups := provider.StringSlice(attrs, "security_group_ids")
	if len(newGroups) > 0 && !sameStrings(oldGroups, newGroups) {
		_, err := p.ec2Client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId: &id,
			Groups:     newGroups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to modify instance security groups: %w", err)
		}
	}
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return nil, err
	}
	return p.readInstance(ctx, id)
}

func (p *Provider) deleteInstance(ctx context.Context, id string) error {
	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidInstanceID.NotFound") {
			return nil
		}
		return fmt.Errorf("failed to terminate instance: %w", err)
	}

	// Subnet and security group deletion fails while the instance still
	// holds its ENI, so wait out the termination.
	waiter := ec2.NewInstanceTerminatedWaiter(p.ec2Client)
	err = waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, instanceTerminatedTimeout)
	if err != nil {
		return fmt.Errorf("failed to wait for instance termination: %w", err)
	}
	return nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
