package domain

import "time"

// BattleMode selects the room capacity and aggregation rules.
type BattleMode string

const (
	ModeSolo1v1 BattleMode = "SOLO_1V1"
	ModeTeam    BattleMode = "TEAM"
)

// Capacity returns how many participants a room of this mode holds.
func (m BattleMode) Capacity() int {
	if m == ModeTeam {
		return 4
	}
	return 2
}

// Valid reports whether the mode is one of the known values.
func (m BattleMode) Valid() bool {
	return m == ModeSolo1v1 || m == ModeTeam
}

// BattleStatus is the room lifecycle state.
type BattleStatus string

const (
	StatusWaiting    BattleStatus = "WAITING"
	StatusInProgress BattleStatus = "IN_PROGRESS"
	StatusCompleted  BattleStatus = "COMPLETED"
	StatusCancelled  BattleStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are legal from this status.
func (s BattleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Battle is one quiz battle room.
type Battle struct {
	ID         string       `json:"id"`
	QuizID     string       `json:"quizId"`
	QuizName   string       `json:"quizName"` // resolved once at creation
	Mode       BattleMode   `json:"mode"`
	Status     BattleStatus `json:"status"`
	LeaderID   string       `json:"leaderId,omitempty"`
	InviteCode string       `json:"inviteCode"`
	CreatedAt  time.Time    `json:"createdAt"`
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	EndedAt    *time.Time   `json:"endedAt,omitempty"`
}

// AnswerRecord is one per-question submission in a participant's answer log.
type AnswerRecord struct {
	QuestionID   string    `json:"questionId"`
	Answer       string    `json:"answer"`
	SubmittedAt  time.Time `json:"submittedAt"`
	TimeTakenMs  int64     `json:"timeTakenMs"`
	IsCorrect    bool      `json:"isCorrect"`
	ScoreAwarded int       `json:"scoreAwarded"`
}

// Participant is one player's membership in a battle.
type Participant struct {
	ID              string         `json:"id"`
	BattleID        string         `json:"battleId"`
	UserID          string         `json:"userId"`
	TeamID          string         `json:"teamId,omitempty"` // meaningful in TEAM mode only
	IPAddress       string         `json:"ipAddress,omitempty"`
	UserAgent       string         `json:"userAgent,omitempty"`
	Score           int            `json:"score"`
	IsReady         bool           `json:"isReady"`
	JoinedAt        time.Time      `json:"joinedAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	Answers         []AnswerRecord `json:"answers"`
	TabSwitchCount  int            `json:"tabSwitchCount"`
	SuspiciousFlags []string       `json:"suspiciousFlags"`
}

// DisplayInfo is best-effort user enrichment from the user directory.
type DisplayInfo struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// ParticipantView is the outbound, display-enriched shape of a participant.
type ParticipantView struct {
	UserID          string     `json:"userId"`
	TeamID          string     `json:"teamId,omitempty"`
	DisplayName     string     `json:"displayName,omitempty"`
	AvatarURL       string     `json:"avatarUrl,omitempty"`
	Score           int        `json:"score"`
	IsReady         bool       `json:"isReady"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	SuspiciousFlags []string   `json:"suspiciousFlags,omitempty"`
}

// RoomState is the full room snapshot broadcast on the state channel.
type RoomState struct {
	BattleID     string            `json:"battleId"`
	QuizID       string            `json:"quizId"`
	QuizName     string            `json:"quizName"`
	Mode         BattleMode        `json:"mode"`
	Status       BattleStatus      `json:"status"`
	LeaderID     string            `json:"leaderId,omitempty"`
	InviteCode   string            `json:"inviteCode"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	Participants []ParticipantView `json:"participants"`
}

// Leaderboard is the score-ordered view broadcast on the leaderboard channel.
type Leaderboard struct {
	BattleID  string            `json:"battleId"`
	Entries   []ParticipantView `json:"entries"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// TeamResult aggregates participant scores by team in TEAM mode.
type TeamResult struct {
	TeamID string `json:"teamId"`
	Total  int    `json:"total"`
}

// BattleResults is the terminal scoreboard returned by getResults.
type BattleResults struct {
	BattleID     string            `json:"battleId"`
	Status       BattleStatus      `json:"status"`
	Participants []ParticipantView `json:"participants"`
	Teams        []TeamResult      `json:"teams,omitempty"` // TEAM mode only
}

// EventKind names the per-room broadcast channels.
type EventKind string

const (
	EventState       EventKind = "state"
	EventLeaderboard EventKind = "leaderboard"
	EventEmote       EventKind = "emote"
)

// Event is one room-scoped broadcast message. Delivery is best-effort:
// no ack, no replay for late subscribers.
type Event struct {
	BattleID string      `json:"battleId"`
	Kind     EventKind   `json:"kind"`
	Payload  interface{} `json:"payload"`
}
