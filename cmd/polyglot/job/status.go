package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mattermost/mattermost-plugin-calls/server/public"
)

const (
	pluginID = "com.mattermost.calls"
)

func (j *Job) postJobStatus(status public.JobStatus) error {
	if j.apiClient == nil {
		return fmt.Errorf("publishing is not configured")
	}

	apiURL := fmt.Sprintf("%s/plugins/%s/bot/calls/%s/jobs/%s/status",
		j.apiURL, pluginID, j.cfg.CallID, j.cfg.JobID)

	payload, err := json.Marshal(&status)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), httpRequestTimeout)
	defer cancelCtx()
	resp, err := j.apiClient.DoAPIRequestBytes(ctx, http.MethodPost, apiURL, payload, "")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return nil
}

func (j *Job) ReportJobFailure(errMsg string) error {
	return j.postJobStatus(public.JobStatus{
		JobType: public.JobTypeTranscribing,
		Status:  public.JobStatusTypeFailed,
		Error:   errMsg,
	})
}

func (j *Job) ReportJobStarted() error {
	return j.postJobStatus(public.JobStatus{
		JobType: public.JobTypeTranscribing,
		Status:  public.JobStatusTypeStarted,
	})
}
