package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"devmarket/internal/model"
)

// ProjectPhase holds the schema definition for one ordered delivery phase.
type ProjectPhase struct {
	ent.Schema
}

// Annotations of the ProjectPhase.
func (ProjectPhase) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "project_phases"}}
}

// Fields of the ProjectPhase.
func (ProjectPhase) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id"),
		field.Int64("project_id"),
		field.String("title").NotEmpty(),
		field.String("description").Optional().Nillable(),
		field.Int("phase_order"),
		field.Enum("status").Values("not_started", "in_progress", "completed").Default("not_started"),
		field.JSON("deliverables", []string{}),
		field.Int("estimated_duration_days").Optional().Nillable(),
		field.Int("actual_duration_days").Optional().Nillable(),
		// Frozen at creation from the title.
		field.Bool("requires_client_approval").Default(false).Immutable(),
		field.Bool("client_approved").Default(false),
		field.Time("client_approved_at").Optional().Nillable(),
		field.JSON("client_questions", []model.Question{}),
		field.JSON("sub_steps", []model.SubStep{}),
		field.JSON("attachments", []model.Attachment{}),
		field.Time("started_at").Optional().Nillable(),
		field.Time("completed_at").Optional().Nillable(),
		field.Time("due_date").Optional().Nillable(),
		field.Text("notes").Optional().Nillable(),
		field.Int64("version").Default(1),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

// Edges of the ProjectPhase.
func (ProjectPhase) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).Ref("phases").Unique().Required().Field("project_id"),
	}
}

// Indexes of the ProjectPhase.
func (ProjectPhase) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "phase_order").Unique(),
	}
}
