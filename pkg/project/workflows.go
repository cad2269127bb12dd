package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/swarmflow/swarmflow/pkg/workflow"
)

// documentStages is the fixed derivation chain fired at project
// initialization, in order. Each stage derives one target document per
// source document; the vision stage roots the chain with one PRD per
// project requirement.
var documentStages = []struct {
	Workflow string
	Source   DocType
	Target   DocType
}{
	{"vision-to-prds", DocVision, DocPRD},
	{"prd-to-epics", DocPRD, DocEpic},
	{"epic-to-features", DocEpic, DocFeature},
	{"feature-to-tasks", DocFeature, DocTask},
}

// docPrefixes are the title prefixes each derived type carries, used to
// recover the subject when chaining.
var docPrefixes = map[DocType]string{
	DocPRD:     "PRD",
	DocEpic:    "Epic",
	DocFeature: "Feature",
	DocTask:    "Task",
}

// registerDocumentWorkflows binds the generate-documents handler and
// the four stage definitions on the workflow engine.
func (c *Coordinator) registerDocumentWorkflows() error {
	c.workflows.RegisterHandler("generate-documents", workflow.HandlerFunc(c.generateDocumentsStep))
	for _, stage := range documentStages {
		def := workflow.Definition{
			Name:        stage.Workflow,
			Description: fmt.Sprintf("Derive %s documents from %s documents", stage.Target, stage.Source),
			Version:     "1",
			Steps: []workflow.StepDef{{
				Type: "generate-documents",
				Name: stage.Workflow,
				Params: map[string]any{
					"source_type": string(stage.Source),
					"target_type": string(stage.Target),
				},
			}},
		}
		if err := c.workflows.RegisterDefinition(def); err != nil {
			return err
		}
	}
	return nil
}

// generateDocumentsStep derives target documents for the project named
// in the workflow context. Stages other than the first are 1:1 with
// their project-scoped source documents.
func (c *Coordinator) generateDocumentsStep(ctx context.Context, wfCtx *workflow.Context, params map[string]any) (any, error) {
	pidAny, _ := wfCtx.Get("project_id")
	pid, _ := pidAny.(string)
	if pid == "" {
		return nil, fmt.Errorf("generate-documents: project_id missing from workflow context")
	}
	source := DocType(stringParam(params, "source_type"))
	target := DocType(stringParam(params, "target_type"))
	if _, ok := docDirs[target]; !ok {
		return nil, fmt.Errorf("generate-documents: unknown target type %q", target)
	}

	var created []string
	if source == DocVision {
		visionAny, _ := wfCtx.Get("vision_doc")
		visionID, _ := visionAny.(string)
		for _, req := range c.visionRequirements(pid) {
			doc := prdDocument(pid, visionID, req)
			if err := c.ws.Save(ctx, doc); err != nil {
				return nil, err
			}
			created = append(created, doc.ID)
		}
	} else {
		sources, err := c.ws.ListForProject(source, pid)
		if err != nil {
			return nil, err
		}
		for i := range sources {
			doc := derivedDocument(pid, &sources[i], target)
			if err := c.ws.Save(ctx, doc); err != nil {
				return nil, err
			}
			created = append(created, doc.ID)
		}
	}

	wfCtx.Set("generated."+string(target), len(created))
	return map[string]any{"count": len(created), "created": created}, nil
}

// visionRequirements returns the requirement titles the PRD stage
// expands. Projects without requirements get a single core-delivery PRD.
func (c *Coordinator) visionRequirements(pid string) []string {
	if proj, err := c.sparc.Project(pid); err == nil && len(proj.Requirements) > 0 {
		return append([]string(nil), proj.Requirements...)
	}
	return []string{"core delivery"}
}

func prdDocument(pid, visionID, requirement string) *Document {
	lower := strings.ToLower(requirement)
	return &Document{
		Type:  DocPRD,
		Title: "PRD: " + requirement,
		Metadata: map[string]string{
			"project": pid,
			"source":  visionID,
		},
		Body: fmt.Sprintf("## Problem\n\nThe product must support %s.\n\n## Goals\n\n- Define acceptance criteria for %s\n- Ship behind a staged rollout\n\n## Out of Scope\n\n- Anything not required by %s",
			lower, lower, lower),
	}
}

// derivedDocument builds the next stage's record from a source
// document, carrying the subject forward and recording lineage.
func derivedDocument(pid string, src *Document, target DocType) *Document {
	subject := src.Title
	if prefix, ok := docPrefixes[src.Type]; ok {
		subject = strings.TrimPrefix(subject, prefix+": ")
	}

	var body string
	switch target {
	case DocEpic:
		body = fmt.Sprintf("## Scope\n\nDeliver %s end to end.\n\n## Source\n\nDerived from %s.", strings.ToLower(subject), src.ID)
	case DocFeature:
		body = fmt.Sprintf("## Behavior\n\nThe system provides %s.\n\n## Source\n\nDerived from %s.", strings.ToLower(subject), src.ID)
	case DocTask:
		body = fmt.Sprintf("## Work Item\n\nImplement %s.\n\n## Definition of Done\n\n- Code merged\n- Tests green\n\n## Source\n\nDerived from %s.", strings.ToLower(subject), src.ID)
	default:
		body = fmt.Sprintf("## Summary\n\n%s\n\n## Source\n\nDerived from %s.", subject, src.ID)
	}

	return &Document{
		Type:  target,
		Title: docPrefixes[target] + ": " + subject,
		Metadata: map[string]string{
			"project": pid,
			"source":  src.ID,
		},
		Body: body,
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
