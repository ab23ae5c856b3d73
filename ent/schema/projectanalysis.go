package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProjectAnalysis holds the schema definition for a generated phase-definition artifact.
type ProjectAnalysis struct {
	ent.Schema
}

// Annotations of the ProjectAnalysis.
func (ProjectAnalysis) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "project_analyses"}}
}

// Fields of the ProjectAnalysis.
func (ProjectAnalysis) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id"),
		field.Int64("project_id"),
		field.String("status").Default("completed"),
		field.Text("content"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

// Edges of the ProjectAnalysis.
func (ProjectAnalysis) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).Ref("analyses").Unique().Required().Field("project_id"),
	}
}

// Indexes of the ProjectAnalysis.
func (ProjectAnalysis) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "status"),
	}
}
