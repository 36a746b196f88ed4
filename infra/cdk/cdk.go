package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	awscloudwatch "github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	awsdynamodb "github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

const (
	resourceNameTable          = "PresenceTable"
	resourceNameOutputTable    = "PresenceTableName"
	resourceNameWriteAlarm     = "HighPresenceWriteUnits"
	resourceNameThrottledAlarm = "PresenceWriteThrottles"

	partitionKey = "pk"

	// One write per join or leave. A sustained rate above this points at a
	// reconnect storm.
	writeUnitsPerMinuteAlarm = 600
)

// NewPresenceStack provisions the table the sync server mirrors viewer
// presence into (PRESENCE_TABLE).
func NewPresenceStack(scope constructs.Construct, id string, props *awscdk.StackProps) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, props)

	table := createPresenceTable(stack)
	createCloudWatchAlarms(stack, table)
	createOutputs(stack, table)

	return stack
}

func createPresenceTable(stack awscdk.Stack) awsdynamodb.Table {
	return awsdynamodb.NewTable(stack, jsii.String(resourceNameTable), &awsdynamodb.TableProps{
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String(partitionKey),
			Type: awsdynamodb.AttributeType_STRING,
		},
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})
}

func createCloudWatchAlarms(stack awscdk.Stack, table awsdynamodb.Table) {
	writeUnits := table.MetricConsumedWriteCapacityUnits(&awscloudwatch.MetricOptions{
		Period:    awscdk.Duration_Minutes(jsii.Number(1)),
		Statistic: jsii.String("Sum"),
	})
	awscloudwatch.NewAlarm(stack, jsii.String(resourceNameWriteAlarm), &awscloudwatch.AlarmProps{
		Metric:            writeUnits,
		Threshold:         jsii.Number(writeUnitsPerMinuteAlarm),
		EvaluationPeriods: jsii.Number(3),
		AlarmDescription:  jsii.String("Presence writes above expected join/leave rate for 3 minutes"),
	})

	throttles := awscloudwatch.NewMetric(&awscloudwatch.MetricProps{
		Namespace:  jsii.String("AWS/DynamoDB"),
		MetricName: jsii.String("WriteThrottleEvents"),
		DimensionsMap: &map[string]*string{
			"TableName": table.TableName(),
		},
		Period:    awscdk.Duration_Minutes(jsii.Number(5)),
		Statistic: jsii.String("Sum"),
	})
	awscloudwatch.NewAlarm(stack, jsii.String(resourceNameThrottledAlarm), &awscloudwatch.AlarmProps{
		Metric:            throttles,
		Threshold:         jsii.Number(1),
		EvaluationPeriods: jsii.Number(1),
		AlarmDescription:  jsii.String("Presence updates are being throttled"),
	})
}

func createOutputs(stack awscdk.Stack, table awsdynamodb.Table) {
	awscdk.NewCfnOutput(stack, jsii.String(resourceNameOutputTable), &awscdk.CfnOutputProps{
		Value:       table.TableName(),
		Description: jsii.String("Value for PRESENCE_TABLE"),
	})
}

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	NewPresenceStack(app, "GlobalPlaybackPresenceStack", &awscdk.StackProps{})
	app.Synth(nil)
}
