package breaker

import (
	"fmt"

	"github.com/pipelineguard/remediator/pkg/playbook"
)

// DeriveKey computes the (error_type, resource_id) breaker key for a
// recovery request. The resource id selected depends on the playbook's
// action: cluster_id for cluster-shaped actions, job_id for job actions,
// pipeline_name for ADF actions. If the expected id is absent from
// metadata, the key degrades to (error_type, "global").
func DeriveKey(errorType string, action playbook.Action, metadata map[string]string) string {
	var resourceID string
	switch action {
	case playbook.ActionRestartCluster, playbook.ActionScaleCluster, playbook.ActionLibraryFallback:
		resourceID = metadata["cluster_id"]
	case playbook.ActionRetryJob:
		resourceID = metadata["job_id"]
	case playbook.ActionRerunPipeline:
		resourceID = metadata["pipeline_name"]
	}
	if resourceID == "" {
		resourceID = "global"
	}
	return fmt.Sprintf("%s:%s", errorType, resourceID)
}
