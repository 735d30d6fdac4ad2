package quiz_generate

import (
	"errors"
	"net/http"

	jobrt "github.com/MartinPaviot/Nareo-sub004/internal/jobs/runtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

const stage = "generate"

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	payload, err := services.DecodeQuizGeneratePayload(jc.Payload())
	if err != nil {
		jc.FailPermanent("validate", err)
		return nil
	}

	jc.Progress(stage, 0, "Starting generation")
	sink := realtime.Tee(
		progressSink(jc),
		realtime.ChannelSink(jc.Ctx, p.emit, realtime.CourseChannel(payload.CourseID)),
	)
	res, err := p.orch.Run(jc.Ctx, payload.Request(), sink)
	if err != nil {
		p.log.Warn("quiz generation failed", "job_id", jc.Job.ID, "course_id", payload.CourseID, "error", err)
		if retryable(err) {
			jc.Fail(stage, err)
		} else {
			jc.FailPermanent(stage, err)
		}
		return nil
	}
	jc.Succeed("done", res)
	return nil
}

// progressSink mirrors progress events onto the job row.
func progressSink(jc *jobrt.Context) realtime.Sink {
	return realtime.SinkFunc(func(ev realtime.Event) error {
		if p, ok := ev.Data.(realtime.ProgressData); ok && ev.Kind == realtime.EventProgress {
			jc.Progress(stage, p.Progress, p.Step)
		}
		return nil
	})
}

// retryable is true for backend failures; request errors (not found,
// insufficient content, already generated) fail the same way every time.
func retryable(err error) bool {
	var api *apierr.Error
	if !errors.As(err, &api) {
		return true
	}
	return api.Status >= http.StatusInternalServerError
}
