package service

import "fmt"

// Artifact keys share the tenant/job prefix used for the options document so
// everything belonging to one job lives under one blob-store path.

func PartialKey(tenantID, jobID string) string {
	return fmt.Sprintf("tenants/%s/jobs/%s/partial.csv", tenantID, jobID)
}

func OutputKey(tenantID, jobID string) string {
	return fmt.Sprintf("tenants/%s/jobs/%s/output.csv", tenantID, jobID)
}

func LogKey(tenantID, jobID string) string {
	return fmt.Sprintf("tenants/%s/jobs/%s/log.txt", tenantID, jobID)
}
