package aws

import (
	"context"
	"fmt"
	"strconv"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/caisson-io/caisson/internal/provider"
)

// Load balancer

func (p *Provider) createLoadBalancer(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	input := &elasticloadbalancingv2.CreateLoadBalancerInput{
		Name:    awssdk.String(provider.String(attrs, "name")),
		Subnets: provider.StringSlice(attrs, "subnets"),
	}
	if groups := provider.StringSlice(attrs, "security_groups"); len(groups) > 0 {
		input.SecurityGroups = groups
	}
	if scheme := provider.String(attrs, "scheme"); scheme != "" {
		input.Scheme = types.LoadBalancerSchemeEnum(scheme)
	}
	if lbType := provider.String(attrs, "type"); lbType != "" {
		input.Type = types.LoadBalancerTypeEnum(lbType)
	}

	out, err := p.elbv2Client.CreateLoadBalancer(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create load balancer: %w", err)
	}
	if len(out.LoadBalancers) == 0 {
		return "", nil, fmt.Errorf("no load balancer created")
	}
	lb := out.LoadBalancers[0]
	arn := awssdk.ToString(lb.LoadBalancerArn)

	return arn, map[string]any{
		"id":       arn,
		"arn":      arn,
		"name":     awssdk.ToString(lb.LoadBalancerName),
		"dns_name": awssdk.ToString(lb.DNSName),
		"zone_id":  awssdk.ToString(lb.CanonicalHostedZoneId),
	}, nil
}

func (p *Provider) readLoadBalancer(ctx context.Context, arn string) (map[string]any, error) {
	out, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{arn},
	})
	if err != nil {
		if isAWSErr(err, "LoadBalancerNotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe load balancer: %w", err)
	}
	if len(out.LoadBalancers) == 0 {
		return nil, provider.ErrNotFound
	}
	lb := out.LoadBalancers[0]
	outputs := map[string]any{
		"id":       arn,
		"arn":      arn,
		"name":     awssdk.ToString(lb.LoadBalancerName),
		"dns_name": awssdk.ToString(lb.DNSName),
		"zone_id":  awssdk.ToString(lb.CanonicalHostedZoneId),
	}
	if len(lb.SecurityGroups) > 0 {
		groups := make([]any, 0, len(lb.SecurityGroups))
		for _, g := range lb.SecurityGroups {
			groups = append(groups, g)
		}
		outputs["security_groups"] = groups
	}
	return outputs, nil
}

func (p *Provider) updateLoadBalancer(ctx context.Context, arn string, attrs, prior map[string]any) (map[string]any, error) {
	oldGroups := provider.StringSlice(prior, "security_groups")
	newGroups := provider.StringSlice(attrs, "security_groups")
	if len(newGroups) > 0 && !sameStrings(oldGroups, newGroups) {
		_, err := p.elbv2Client.SetSecurityGroups(ctx, &elasticloadbalancingv2.SetSecurityGroupsInput{
			LoadBalancerArn: &arn,
			SecurityGroups:  newGroups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set load balancer security groups: %w", err)
		}
	}
	return p.readLoadBalancer(ctx, arn)
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, arn string) error {
	_, err := p.elbv2Client.DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
		LoadBalancerArn: &arn,
	})
	if err != nil && !isAWSErr(err, "LoadBalancerNotFound") {
		return fmt.Errorf("failed to delete load balancer: %w", err)
	}
	return nil
}

// Target group

func (p *Provider) createTargetGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	input := &elasticloadbalancingv2.CreateTargetGroupInput{
		Name:     awssdk.String(provider.String(attrs, "name")),
		Port:     awssdk.Int32(int32(provider.Int(attrs, "port"))),
		Protocol: types.ProtocolEnum(provider.String(attrs, "protocol")),
		VpcId:    awssdk.String(provider.String(attrs, "vpc_id")),
	}
	if targetType := provider.String(attrs, "target_type"); targetType != "" {
		input.TargetType = types.TargetTypeEnum(targetType)
	}
	if hc := provider.StringMap(attrs, "health_check"); hc != nil {
		applyHealthCheck(input, hc)
	}

	out, err := p.elbv2Client.CreateTargetGroup(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create target group: %w", err)
	}
	if len(out.TargetGroups) == 0 {
		return "", nil, fmt.Errorf("no target group created")
	}
	tg := out.TargetGroups[0]
	arn := awssdk.ToString(tg.TargetGroupArn)

	return arn, map[string]any{
		"id":   arn,
		"arn":  arn,
		"name": awssdk.ToString(tg.TargetGroupName),
	}, nil
}

func (p *Provider) readTargetGroup(ctx context.Context, arn string) (map[string]any, error) {
	out, err := p.elbv2Client.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		TargetGroupArns: []string{arn},
	})
	if err != nil {
		if isAWSErr(err, "TargetGroupNotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe target group: %w", err)
	}
	if len(out.TargetGroups) == 0 {
		return nil, provider.ErrNotFound
	}
	tg := out.TargetGroups[0]
	return map[string]any{
		"id":   arn,
		"arn":  arn,
		"name": awssdk.ToString(tg.TargetGroupName),
	}, nil
}

func (p *Provider) updateTargetGroup(ctx context.Context, arn string, attrs, prior map[string]any) (map[string]any, error) {
	if hc := provider.StringMap(attrs, "health_check"); hc != nil {
		input := &elasticloadbalancingv2.ModifyTargetGroupInput{TargetGroupArn: &arn}
		if path := hc["path"]; path != "" {
			input.HealthCheckPath = &path
		}
		if interval := atoi32(hc["interval"]); interval > 0 {
			input.HealthCheckIntervalSeconds = &interval
		}
		if timeout := atoi32(hc["timeout"]); timeout > 0 {
			input.HealthCheckTimeoutSeconds = &timeout
		}
		if healthy := atoi32(hc["healthy_threshold"]); healthy > 0 {
			input.HealthyThresholdCount = &healthy
		}
		if unhealthy := atoi32(hc["unhealthy_threshold"]); unhealthy > 0 {
			input.UnhealthyThresholdCount = &unhealthy
		}
		if _, err := p.elbv2Client.ModifyTargetGroup(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to modify target group: %w", err)
		}
	}
	return p.readTargetGroup(ctx, arn)
}

func (p *Provider) deleteTargetGroup(ctx context.Context, arn string) error {
	_, err := p.elbv2Client.DeleteTargetGroup(ctx, &elasticloadbalancingv2.DeleteTargetGroupInput{
		TargetGroupArn: &arn,
	})
	if err != nil && !isAWSErr(err, "TargetGroupNotFound") {
		return fmt.Errorf("failed to delete target group: %w", err)
	}
	return nil
}

// Listener

func (p *Provider) createListener(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	input := &elasticloadbalancingv2.CreateListenerInput{
		LoadBalancerArn: awssdk.String(provider.String(attrs, "load_balancer_arn")),
		Port:            awssdk.Int32(int32(provider.Int(attrs, "port"))),
		Protocol:        types.ProtocolEnum(provider.String(attrs, "protocol")),
		DefaultActions:  forwardAction(provider.String(attrs, "target_group_arn")),
	}

	out, err := p.elbv2Client.CreateListener(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create listener: %w", err)
	}
	if len(out.Listeners) == 0 {
		return "", nil, fmt.Errorf("no listener created")
	}
	arn := awssdk.ToString(out.Listeners[0].ListenerArn)

	return arn, map[string]any{"id": arn, "arn": arn}, nil
}

func (p *Provider) readListener(ctx context.Context, arn string) (map[string]any, error) {
	out, err := p.elbv2Client.DescribeListeners(ctx, &elasticloadbalancingv2.DescribeListenersInput{
		ListenerArns: []string{arn},
	})
	if err != nil {
		if isAWSErr(err, "ListenerNotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe listener: %w", err)
	}
	if len(out.Listeners) == 0 {
		return nil, provider.ErrNotFound
	}
	return map[string]any{"id": arn, "arn": arn}, nil
}

func (p *Provider) updateListener(ctx context.Context, arn string, attrs, prior map[string]any) (map[string]any, error) {
	input := &elasticloadbalancingv2.ModifyListenerInput{
		ListenerArn:    &arn,
		Port:           awssdk.Int32(int32(provider.Int(attrs, "port"))),
		Protocol:       types.ProtocolEnum(provider.String(attrs, "protocol")),
		DefaultActions: forwardAction(provider.String(attrs, "target_group_arn")),
	}
	if _, err := p.elbv2Client.ModifyListener(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to modify listener: %w", err)
	}
	return map[string]any{"id": arn, "arn": arn}, nil
}

func (p *Provider) deleteListener(ctx context.Context, arn string) error {
	_, err := p.elbv2Client.DeleteListener(ctx, &elasticloadbalancingv2.DeleteListenerInput{ListenerArn: &arn})
	if err != nil && !isAWSErr(err, "ListenerNotFound") {
		return fmt.Errorf("failed to delete listener: %w", err)
	}
	return nil
}

func forwardAction(targetGroupArn string) []types.Action {
	return []types.Action{{
		Type:           types.ActionTypeEnumForward,
		TargetGroupArn: &targetGroupArn,
	}}
}

func applyHealthCheck(input *elasticloadbalancingv2.CreateTargetGroupInput, hc map[string]string) {
	if path := hc["path"]; path != "" {
		input.HealthCheckPath = &path
	}
	if interval := atoi32(hc["interval"]); interval > 0 {
		input.HealthCheckIntervalSeconds = &interval
	}
	if timeout := atoi32(hc["timeout"]); timeout > 0 {
		input.HealthCheckTimeoutSeconds = &timeout
	}
	if healthy := atoi32(hc["healthy_threshold"]); healthy > 0 {
		input.HealthyThresholdCount = &healthy
	}
	if unhealthy := atoi32(hc["unhealthy_threshold"]); unhealthy > 0 {
		input.UnhealthyThresholdCount = &unhealthy
	}
}

func atoi32(s string) int32 {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return int32(n)
}
