package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos/candidate"
	"github.com/yungbote/candidate-intel-backend/internal/data/repos/chat"
	"github.com/yungbote/candidate-intel-backend/internal/data/repos/jobs"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

type SummaryRepo = candidate.SummaryRepo
type ChatMessageRepo = chat.MessageRepo
type JobRunRepo = jobs.JobRunRepo

func NewSummaryRepo(db *gorm.DB, baseLog *logger.Logger) SummaryRepo {
	return candidate.NewSummaryRepo(db, baseLog)
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewMessageRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
