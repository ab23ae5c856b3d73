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

// Project holds the schema definition for a client-owned marketplace project.
type Project struct {
	ent.Schema
}

// Annotations of the Project.
func (Project) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "projects"}}
}

// Fields of the Project.
func (Project) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id"),
		field.String("title").NotEmpty(),
		field.String("description").Optional().Nillable(),
		field.String("project_type").Default(""),
		field.Int64("client_id").Immutable(),
		field.Int64("assigned_programmer_id").Optional().Nillable(),
		field.JSON("team_ids", []int64{}),
		field.Enum("status").
			Values("Holding", "Open", "Ready", "Development", "Completed", "Cancelled").
			Default("Holding"),
		field.Bool("team_closed").Default(false),
		field.JSON("ready_confirmed_by", []int64{}),
		field.Time("start_date").Optional().Nillable(),
		field.Time("due_date").Optional().Nillable(),
		field.Time("completed_date").Optional().Nillable(),
		// Set once when the phase batch is created.
		field.Time("phases_confirmed_at").Optional().Nillable(),
		field.Int64("version").Default(1),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

// Edges of the Project.
func (Project) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("client", User.Type).Ref("owned_projects").Unique().Required().Immutable().Field("client_id"),
		edge.From("assigned_programmer", User.Type).Ref("assigned_projects").Unique().Field("assigned_programmer_id"),
		edge.To("phases", ProjectPhase.Type).Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("analyses", ProjectAnalysis.Type).Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Project.
func (Project) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("client_id"),
		index.Fields("status"),
	}
}
