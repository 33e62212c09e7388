package runtime

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
)

/*
Request is the execution contract between the pipeline and a content generator.
It carries everything a generator may read for one run:
  - the job identity and kind,
  - the curriculum target and its resolved hierarchy,
  - the requested language and difficulty,
  - the decoded kind-specific payload,
  - and, for regenerations, the editor instruction plus the content being replaced.

Generators never touch job rows. Persistence and status belong to the caller.
*/
type Request struct {
	JobID      uuid.UUID
	Kind       jobs.JobKind
	TargetType string
	TargetID   string
	Language   string
	Difficulty string
	Hierarchy  jobs.Hierarchy
	Payload    jobs.Payload

	Instruction string
	Previous    json.RawMessage
}

// NewHydrationRequest builds a Request from a hydration job and its decoded payload.
func NewHydrationRequest(job *jobs.HydrationJob, payload jobs.Payload) Request {
	r := Request{
		JobID:      job.ID,
		Kind:       job.JobKind,
		TargetType: job.TargetType,
		TargetID:   job.TargetID,
		Language:   job.Language,
		Difficulty: job.Difficulty,
		Payload:    payload,
	}
	if payload != nil {
		r.Hierarchy = jobs.HierarchyOf(payload)
	} else {
		r.Hierarchy = jobs.Hierarchy{
			BoardID:   job.BoardID,
			GradeID:   job.GradeID,
			SubjectID: job.SubjectID,
			ChapterID: job.ChapterID,
			TopicID:   job.TopicID,
		}
	}
	return r
}

// HierarchyFromMap reads the loosely-typed hierarchy stored on regeneration instructions.
func HierarchyFromMap(m map[string]string) jobs.Hierarchy {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(m[k]); v != "" {
				return v
			}
		}
		return ""
	}
	return jobs.Hierarchy{
		BoardID:   get("board_id", "boardId"),
		GradeID:   get("grade_id", "gradeId"),
		SubjectID: get("subject_id", "subjectId"),
		ChapterID: get("chapter_id", "chapterId"),
		TopicID:   get("topic_id", "topicId"),
	}
}
