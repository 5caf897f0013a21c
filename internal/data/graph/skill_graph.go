package graph

import (
	"context"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/candidate-intel-backend/internal/domain/candidate"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/neo4jdb"
)

// SkillGraph projects candidate summaries into Neo4j as
// (Candidate)-[:HAS_SKILL]->(Skill) and (Candidate)-[:WORKED_AT]->(Company).
// It is a derived view; the relational store stays authoritative.
type SkillGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewSkillGraph(client *neo4jdb.Client, log *logger.Logger) *SkillGraph {
	if client == nil || client.Driver == nil {
		return nil
	}
	return &SkillGraph{client: client, log: log.With("graph", "SkillGraph")}
}

type skillRows struct {
	skills    []map[string]any
	companies []map[string]any
}

func buildSkillRows(candidateID string, s *candidate.Summary, syncedAt string) skillRows {
	out := skillRows{skills: []map[string]any{}, companies: []map[string]any{}}
	if s == nil {
		return out
	}
	core := map[string]bool{}
	for _, sk := range s.CoreSkills {
		core[normalizeName(sk)] = true
	}
	for _, name := range s.SkillNames() {
		norm := normalizeName(name)
		if norm == "" {
			continue
		}
		out.skills = append(out.skills, map[string]any{
			"candidate_id": candidateID,
			"name":         strings.TrimSpace(name),
			"name_norm":    norm,
			"core":         core[norm],
			"synced_at":    syncedAt,
		})
	}
	seen := map[string]bool{}
	for _, w := range s.WorkExperience {
		norm := normalizeName(candidate.Str(w.Company))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out.companies = append(out.companies, map[string]any{
			"candidate_id": candidateID,
			"name":         strings.TrimSpace(candidate.Str(w.Company)),
			"name_norm":    norm,
			"role":         strings.TrimSpace(candidate.Str(w.Role)),
			"duration":     strings.TrimSpace(candidate.Str(w.Duration)),
			"synced_at":    syncedAt,
		})
	}
	return out
}

// ProjectCandidate replaces the candidate's skill and company edges with the
// ones derived from s.
func (g *SkillGraph) ProjectCandidate(ctx context.Context, candidateID string, s *candidate.Summary) error {
	if g == nil || g.client == nil || g.client.Driver == nil {
		return nil
	}
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" || s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := buildSkillRows(candidateID, s, now)

	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	for _, q := range []string{
		`CREATE CONSTRAINT candidate_id_unique IF NOT EXISTS FOR (c:Candidate) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT skill_name_unique IF NOT EXISTS FOR (s:Skill) REQUIRE s.name_norm IS UNIQUE`,
		`CREATE CONSTRAINT company_name_unique IF NOT EXISTS FOR (c:Company) REQUIRE c.name_norm IS UNIQUE`,
	} {
		if res, err := session.Run(ctx, q, nil); err != nil {
			g.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		run := func(cypher string, params map[string]any) error {
			res, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return err
			}
			_, err = res.Consume(ctx)
			return err
		}

		if err := run(`
MERGE (c:Candidate {id: $candidate_id})
SET c.synced_at = $synced_at
WITH c
OPTIONAL MATCH (c)-[r:HAS_SKILL|WORKED_AT]->()
DELETE r
`, map[string]any{"candidate_id": candidateID, "synced_at": now}); err != nil {
			return nil, err
		}

		if len(rows.skills) > 0 {
			if err := run(`
UNWIND $rows AS r
MATCH (c:Candidate {id: r.candidate_id})
MERGE (s:Skill {name_norm: r.name_norm})
ON CREATE SET s.name = r.name
MERGE (c)-[e:HAS_SKILL]->(s)
SET e.core = r.core,
    e.synced_at = r.synced_at
`, map[string]any{"rows": rows.skills}); err != nil {
				return nil, err
			}
		}

		if len(rows.companies) > 0 {
			if err := run(`
UNWIND $rows AS r
MATCH (c:Candidate {id: r.candidate_id})
MERGE (co:Company {name_norm: r.name_norm})
ON CREATE SET co.name = r.name
MERGE (c)-[e:WORKED_AT]->(co)
SET e.role = r.role,
    e.duration = r.duration,
    e.synced_at = r.synced_at
`, map[string]any{"rows": rows.companies}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	// Collapse whitespace.
	return strings.Join(strings.Fields(s), " ")
}
