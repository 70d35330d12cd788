// Package remote implements the HTTP clients for the remote mutation and
// compare endpoints. The mutation client maps HTTP and wire-level failures
// onto the syncbox failure taxonomy (transient, permanent, conflict) and
// performs no internal retries: retry policy belongs to the processor.
package remote
