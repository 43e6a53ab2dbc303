package models

import "time"

// Project statuses. Any status can be reached from any other one.
const (
	ProjectActive    = "active"
	ProjectPaused    = "paused"
	ProjectCompleted = "completed"
)

// ValidProjectStatuses enumerates the statuses accepted for a project.
var ValidProjectStatuses = map[string]struct{}{
	ProjectActive:    {},
	ProjectPaused:    {},
	ProjectCompleted: {},
}

// User is a person that can be responsible for stages.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      *string   `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Client owns one or more projects.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Project describes an "obra" that moves through ordered stages.
type Project struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Description     *string    `json:"description"`
	ClientID        *int64     `json:"client_id"`
	ClientName      *string    `json:"client_name"`
	ResponsibleID   *int64     `json:"responsible_id"`
	ResponsibleName *string    `json:"responsible_name"`
	Deadline        *time.Time `json:"deadline"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ProjectSummary is a list row with aggregated stage counts and derived facts.
type ProjectSummary struct {
	Project
	TotalStages     int     `json:"total_stages"`
	CompletedStages int     `json:"completed_stages"`
	CurrentStage    *string `json:"current_stage"`
	Progress        float64 `json:"progress"`
	Urgency         string  `json:"urgency,omitempty"`
}

// ProjectDetail is a project together with its ordered, enriched stages.
type ProjectDetail struct {
	Project
	Progress     float64 `json:"progress"`
	CurrentStage *string `json:"current_stage"`
	Urgency      string  `json:"urgency,omitempty"`
	Stages       []Stage `json:"stages"`
}

// StageTemplate is a blueprint copied into every new project.
type StageTemplate struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	OrderNumber            int       `json:"order_number"`
	DefaultResponsibleID   *int64    `json:"default_responsible_id"`
	DefaultResponsibleName *string   `json:"default_responsible_name"`
	EstimatedDurationDays  *int      `json:"estimated_duration_days"`
	CreatedAt              time.Time `json:"created_at"`
}

// Stage is one sequential phase of a project.
type Stage struct {
	ID                   int64      `json:"id"`
	ProjectID            int64      `json:"project_id"`
	TemplateID           *int64     `json:"template_id"`
	Name                 string     `json:"name"`
	ResponsibleID        *int64     `json:"responsible_id"`
	StartDate            *time.Time `json:"start_date"`
	EstimatedEndDate     *time.Time `json:"estimated_end_date"`
	CompletedDate        *time.Time `json:"completed_date"`
	IntermediateDate     *time.Time `json:"intermediate_date"`
	IntermediateDateNote *string    `json:"intermediate_date_note"`
	OrderNumber          int        `json:"order_number"`
	IsCompleted          bool       `json:"is_completed"`
	CreatedAt            time.Time  `json:"created_at"`

	// Joined and derived fields, filled by list and detail queries.
	ResponsibleName  *string   `json:"responsible_name,omitempty"`
	ResponsibleEmail *string   `json:"responsible_email,omitempty"`
	ResponsibleRole  *string   `json:"responsible_role,omitempty"`
	ProjectName      string    `json:"project_name,omitempty"`
	ClientID         *int64    `json:"client_id,omitempty"`
	ClientName       *string   `json:"client_name,omitempty"`
	Tags             []Tag     `json:"tags"`
	RecentComments   []Comment `json:"recent_comments"`
	Comments         []Comment `json:"comments,omitempty"`
	CommentsCount    int       `json:"comments_count"`
	NeedsData        bool      `json:"needs_data"`
	Urgency          string    `json:"urgency,omitempty"`
}

// Tag labels stages. Names are unique.
type Tag struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Color      *string   `json:"color"`
	UsageCount int       `json:"usage_count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Comment is a free-text note on a stage. Author is not a user reference.
type Comment struct {
	ID          int64     `json:"id"`
	StageID     int64     `json:"stage_id"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	StageName   string    `json:"stage_name,omitempty"`
	ProjectName string    `json:"project_name,omitempty"`
}

// OrderAssignment moves one stage or template to a new order number.
type OrderAssignment struct {
	ID          int64
	OrderNumber int
}

// UserWorkload groups the open stages assigned to a user.
type UserWorkload struct {
	User       User    `json:"user"`
	InProgress []Stage `json:"in_progress"`
	Pending    []Stage `json:"pending"`
}
