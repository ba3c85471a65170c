package cel

// ConditionExamples are rule conditions that complement an event pattern with
// checks patterns cannot express.
var ConditionExamples = map[string]string{
	"object_size":        `detail.object.size > 1048576`,
	"key_extension":      `detail.object.key.endsWith(".csv")`,
	"failed_login":       `detail.responseElements.ConsoleLogin == "Failure"`,
	"root_user":          `detail.userIdentity.type == "Root"`,
	"instance_in_list":   `detail["instance-id"] in ["i-0abc", "i-0def"]`,
	"business_hours":     `time.getHours("UTC") >= 9 && time.getHours("UTC") < 17`,
	"has_field":          `has(detail.reason) && detail.reason != ""`,
	"regional":           `region == "eu-west-1" || region == "eu-central-1"`,
	"resource_present":   `resources.exists(r, r.startsWith("arn:aws:ec2"))`,
	"alarm_flapping":     `detail.state.value == "ALARM" && detail.previousState.value == "OK"`,
	"build_phase_failed": `detail_type == "CodeBuild Build Phase Change" && detail["completed-phase-status"] != "SUCCEEDED"`,
}
