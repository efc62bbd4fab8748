package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/creditrisk/graphqa/domain"
	"github.com/creditrisk/graphqa/health"
	"github.com/creditrisk/graphqa/queue"
	"github.com/creditrisk/graphqa/schema"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"ask", "schema", "serve", "worker", "health"})
}

func TestSchemaCmd_Builtin(t *testing.T) {
	out, err := execute(t, "schema", "--builtin")
	require.NoError(t, err)
	assert.Equal(t, schema.CreditRisk().Render(), out)
}

func TestSchemaCmd_BuiltinJSON(t *testing.T) {
	out, err := execute(t, "schema", "--builtin", "--format", "json")
	require.NoError(t, err)

	var def schema.Definition
	require.NoError(t, json.Unmarshal([]byte(out), &def))
	assert.Contains(t, def.Labels, "Customer")
	assert.Contains(t, def.RelationshipTypes, "LOAN_HAS_PD")
}

func TestSchemaCmd_BuiltinYAML(t *testing.T) {
	out, err := execute(t, "schema", "--builtin", "--format", "yaml")
	require.NoError(t, err)

	var def schema.Definition
	require.NoError(t, yaml.Unmarshal([]byte(out), &def))
	assert.Len(t, def.Labels, 8)
}

func TestSchemaCmd_UnknownFormat(t *testing.T) {
	_, err := execute(t, "schema", "--builtin", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestAskCmd_ExclusiveTransports(t *testing.T) {
	_, err := execute(t, "ask", "--remote", "--grpc", "localhost:50051", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "ask")
	require.Error(t, err)
}

func TestRootCmd_MissingConfig(t *testing.T) {
	_, err := execute(t, "--config", "/nonexistent/graphqa.yaml", "schema", "--builtin")
	require.Error(t, err)
}

func TestPrintReply(t *testing.T) {
	entities, err := domain.Encode([]domain.Entity{&domain.Customer{Name: "Customer_3"}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		reply queue.Reply
		want  []string
	}{
		{
			name: "answered",
			reply: queue.Reply{
				Status:        "answered",
				Query:         "MATCH (c:Customer) WHERE c.riskRating = $lit0 RETURN c.name",
				Params:        map[string]any{"lit0": "High"},
				Entities:      entities,
				MappingErrors: []string{`record 4, column "c.name": missing`},
			},
			want: []string{
				"Query: MATCH (c:Customer)",
				`Params: {"lit0":"High"}`,
				"Results: 1",
				`Customer {"customerId":"","name":"Customer_3","riskRating":""}`,
				"skipped: record 4",
			},
		},
		{
			name:  "unanswerable",
			reply: queue.Reply{Status: "unanswerable"},
			want:  []string{"cannot be answered"},
		},
		{
			name:  "exhausted",
			reply: queue.Reply{Status: "exhausted", Attempts: 3, Error: "unknown relationship type \"OWNS\""},
			want:  []string{"after 3 attempt(s)", "OWNS"},
		},
		{
			name:  "failed",
			reply: queue.Reply{Status: "failed", ErrorKind: "execution", Error: "connection reset"},
			want:  []string{"Failed (execution): connection reset"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printReply(&buf, &tt.reply, false))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintReply_JSON(t *testing.T) {
	var buf bytes.Buffer
	reply := &queue.Reply{ID: "job-1", Status: "unanswerable", Attempts: 1}
	require.NoError(t, printReply(&buf, reply, true))

	var back queue.Reply
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, *reply, back)
}

func TestPrintReport(t *testing.T) {
	report := health.Report{
		Overall: health.Unhealthy("neo4j: ping failed", nil),
		Components: map[string]health.Status{
			"neo4j":  health.Unhealthy("ping failed", nil),
			"schema": health.Healthy("schema loaded"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report, false))
	out := buf.String()
	assert.Contains(t, out, "UNHEALTHY: neo4j: ping failed")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("neo4j ")), bytes.Index(buf.Bytes(), []byte("schema ")))
}
