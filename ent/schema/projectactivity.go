package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProjectActivity holds the schema definition for the append-only audit feed.
// It has no edge to Project so records survive project deletion.
type ProjectActivity struct {
	ent.Schema
}

// Annotations of the ProjectActivity.
func (ProjectActivity) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "project_activities"}}
}

// Fields of the ProjectActivity.
func (ProjectActivity) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id"),
		field.Int64("project_id").Immutable(),
		field.Int64("actor_id").Immutable(),
		field.String("action").NotEmpty().Immutable(),
		field.String("target_type").Optional().Nillable().Immutable(),
		field.String("target_id").Optional().Nillable().Immutable(),
		field.JSON("metadata", map[string]any{}).Optional().Immutable(),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

// Indexes of the ProjectActivity.
func (ProjectActivity) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "created_at"),
		index.Fields("project_id", "action"),
	}
}
