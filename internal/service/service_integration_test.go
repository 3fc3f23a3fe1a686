package service_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orienta/internal/config"
	"orienta/internal/ml"
	"orienta/internal/models"
	"orienta/internal/repository"
	"orienta/internal/service"
	"orienta/internal/testutil"
)

type services struct {
	db             *sql.DB
	questionnaires *service.QuestionnaireService
	versions       *service.VersionService
	structure      *service.StructureService
	responses      *service.ResponseService
	reports        *service.ReportService
	ml             *service.MLService
	imports        *service.ImportService
}

func newServices(db *sql.DB, artifactDir string) *services {
	questionnaireRepo := repository.NewQuestionnaireRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	structureRepo := repository.NewStructureRepository(db)
	userRepo := repository.NewUserRepository(db)
	responseRepo := repository.NewResponseRepository(db)

	s := &services{db: db}
	s.questionnaires = service.NewQuestionnaireService(db, questionnaireRepo, versionRepo, responseRepo)
	s.versions = service.NewVersionService(db, questionnaireRepo, versionRepo, structureRepo, responseRepo)
	s.structure = service.NewStructureService(db, questionnaireRepo, versionRepo, structureRepo, responseRepo)
	s.responses = service.NewResponseService(db, questionnaireRepo, versionRepo, structureRepo, userRepo, responseRepo)
	s.reports = service.NewReportService(versionRepo, structureRepo, responseRepo, config.ReportConfig{DefaultPageSize: 50, MaxPageSize: 500})
	engine := ml.NewEngine(&config.MLConfig{ArtifactDir: artifactDir, Timeout: 5 * time.Second})
	s.ml = service.NewMLService(versionRepo, structureRepo, responseRepo, engine, 2)
	s.imports = service.NewImportService(s.questionnaires, s.versions, s.structure)
	return s
}

// publishedForm creates a questionnaire whose first version holds one section with
// the given questions and is published
func (s *services) publishedForm(t *testing.T, code string, questions ...service.QuestionInput) *models.Version {
	t.Helper()
	ctx := context.Background()

	testutil.Must(t, s.questionnaires.Create(ctx, service.CreateQuestionnaireInput{Code: code, Title: code}))
	v := testutil.Must(t, s.versions.CreateVersion(ctx, code))
	section := testutil.Must(t, s.structure.CreateSection(ctx, v.ID, service.SectionInput{Title: "Main"}))
	for _, q := range questions {
		testutil.Must(t, s.structure.CreateQuestion(ctx, section.ID, q))
	}
	return testutil.Must(t, s.versions.Publish(ctx, v.ID))
}

func raw(v string) json.RawMessage { return json.RawMessage(v) }

func TestServicesIntegration(t *testing.T) {
	db := testutil.SetupPostgres(t)
	artifactDir := t.TempDir()
	s := newServices(db, artifactDir)
	ctx := context.Background()

	t.Run("finalize without required answer lists missing field", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "cog1", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeBoolean, Required: true})

		_, err := s.responses.Finalize(ctx, v.ID, "A001", nil)
		var missing *service.MissingFieldsError
		require.True(t, errors.As(err, &missing), "got %v", err)
		require.Len(t, missing.Sections, 1)
		assert.Equal(t, []string{"q1"}, missing.Sections[0].Questions)

		state, err := s.responses.StatusFor(ctx, v.ID, "A001")
		require.NoError(t, err)
		assert.Equal(t, models.ResponseInProgress, state.Status)
	})

	t.Run("deleting the only published version conflicts", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "x")

		err := s.versions.DeleteVersion(ctx, v.ID)
		var conflict *service.ConflictError
		require.True(t, errors.As(err, &conflict), "got %v", err)
		assert.Equal(t, service.ReasonVersionIsLatestPublished, conflict.Reason)
	})

	t.Run("publishing a newer version demotes the previous latest", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v1 := s.publishedForm(t, "x")
		v2 := testutil.Must(t, s.versions.CreateVersion(ctx, "x"))
		assert.Equal(t, 2, v2.Number)

		v2 = testutil.Must(t, s.versions.Publish(ctx, v2.ID))
		assert.True(t, v2.IsLatestPublished)

		d1, err := s.versions.GetVersion(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VersionPublished, d1.Status)
		assert.False(t, d1.IsLatestPublished)

		_, err = s.versions.Publish(ctx, v2.ID)
		var state *service.InvalidStateError
		assert.True(t, errors.As(err, &state))

		require.NoError(t, s.versions.DeleteVersion(ctx, v1.ID))

		// Numbers stay contiguous
		detail := testutil.Must(t, s.questionnaires.Get(ctx, "x"))
		require.Len(t, detail.Versions, 1)
		assert.Equal(t, 1, detail.Versions[0].Number)
		assert.Equal(t, v2.ID, detail.Versions[0].ID)
	})

	t.Run("versions with responses cannot be deleted", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v1 := s.publishedForm(t, "x", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText})
		testutil.Must(t, s.responses.Save(ctx, v1.ID, "A001", map[string]json.RawMessage{"q1": raw(`"hi"`)}))

		v2 := testutil.Must(t, s.versions.CloneVersion(ctx, v1.ID))
		testutil.Must(t, s.versions.Publish(ctx, v2.ID))

		err := s.versions.DeleteVersion(ctx, v1.ID)
		var conflict *service.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, service.ReasonVersionHasResponses, conflict.Reason)
	})

	t.Run("at most one primary questionnaire", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		testutil.Must(t, s.questionnaires.Create(ctx, service.CreateQuestionnaireInput{Code: "aa", Title: "A"}))
		testutil.Must(t, s.questionnaires.Create(ctx, service.CreateQuestionnaireInput{Code: "bb", Title: "B"}))

		testutil.Must(t, s.questionnaires.SetPrimary(ctx, "aa", true))
		_, err := s.questionnaires.SetPrimary(ctx, "bb", true)
		var conflict *service.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, service.ReasonAnotherPrimaryExists, conflict.Reason)

		testutil.Must(t, s.questionnaires.SetPrimary(ctx, "aa", false))
		testutil.Must(t, s.questionnaires.SetPrimary(ctx, "bb", true))

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM questionnaires WHERE is_primary`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("clone copies structure into a new draft", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v1 := s.publishedForm(t, "x",
			service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeSingleChoice, Required: true,
				Options: []service.OptionInput{{Value: "a", Label: "A"}, {Value: "b", Label: "B"}}},
			service.QuestionInput{Code: "q2", Text: "Q2", Type: models.TypeNumber, ValidationRules: raw(`{"min": 0}`)},
		)
		testutil.Must(t, s.versions.UpdateMetadata(ctx, v1.ID, raw(`{"ml_binding": {"artifact_path": "m.json", "feature_order": ["q2"]}}`)))

		clone := testutil.Must(t, s.versions.CloneVersion(ctx, v1.ID))
		assert.Equal(t, models.VersionDraft, clone.Status)
		assert.Equal(t, 2, clone.Number)
		assert.NotEqual(t, v1.ID, clone.ID)
		assert.JSONEq(t, `{"ml_binding": {"artifact_path": "m.json", "feature_order": ["q2"]}}`, string(clone.Metadata))

		source := testutil.Must(t, s.versions.GetVersion(ctx, v1.ID))
		copied := testutil.Must(t, s.versions.GetVersion(ctx, clone.ID))
		require.Len(t, copied.Sections, len(source.Sections))
		for i := range source.Sections {
			assert.Equal(t, source.Sections[i].Title, copied.Sections[i].Title)
			assert.Equal(t, source.Sections[i].Order, copied.Sections[i].Order)
			require.Len(t, copied.Sections[i].Questions, len(source.Sections[i].Questions))
			for j, q := range source.Sections[i].Questions {
				c := copied.Sections[i].Questions[j]
				assert.Equal(t, q.Code, c.Code)
				assert.Equal(t, q.Text, c.Text)
				assert.Equal(t, q.Order, c.Order)
				assert.Equal(t, len(q.Options), len(c.Options))
			}
		}

		// Published structure is immutable
		_, err := s.structure.CreateSection(ctx, v1.ID, service.SectionInput{Title: "Extra"})
		var state *service.InvalidStateError
		require.True(t, errors.As(err, &state))
		assert.Equal(t, service.ReasonVersionNotEditable, state.Reason)
	})

	t.Run("save round trips values and finalize is idempotent", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "x",
			service.QuestionInput{Code: "name", Text: "Name", Type: models.TypeText, Required: true},
			service.QuestionInput{Code: "age", Text: "Age", Type: models.TypeNumber},
			service.QuestionInput{Code: "works", Text: "Works", Type: models.TypeBoolean},
			service.QuestionInput{Code: "hobbies", Text: "Hobbies", Type: models.TypeMultiChoice,
				Options: []service.OptionInput{{Value: "art"}, {Value: "sport"}}},
		)

		state, err := s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{"name": raw(`"Ana, \"la\" grande"`)})
		require.NoError(t, err)
		assert.Equal(t, 25, state.Progress)

		state, err = s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{
			"age":     raw(`16.5`),
			"works":   raw(`false`),
			"hobbies": raw(`["sport", "art"]`),
		})
		require.NoError(t, err)
		assert.Equal(t, 100, state.Progress)
		assert.Equal(t, models.StringValue(`Ana, "la" grande`), state.Answers["name"])
		assert.Equal(t, models.NumberValue(16.5), state.Answers["age"])
		assert.Equal(t, models.BoolValue(false), state.Answers["works"])
		assert.Equal(t, models.ListValue([]string{"sport", "art"}), state.Answers["hobbies"])

		_, err = s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{"nope": raw(`1`)})
		var verr *service.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"nope"}, verr.Unknown)

		first, err := s.responses.Finalize(ctx, v.ID, "A001", nil)
		require.NoError(t, err)
		assert.Equal(t, models.ResponseFinalized, first.Status)
		require.NotNil(t, first.FinalizedAt)

		again, err := s.responses.Finalize(ctx, v.ID, "A001", map[string]json.RawMessage{"age": raw(`20`)})
		require.NoError(t, err)
		assert.Equal(t, first.FinalizedAt, again.FinalizedAt)
		assert.Equal(t, models.NumberValue(16.5), again.Answers["age"])

		_, err = s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{"age": raw(`20`)})
		var conflict *service.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, service.ReasonResponseFinalized, conflict.Reason)
	})

	t.Run("concurrent saves share one response", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "x",
			service.QuestionInput{Code: "a", Text: "A", Type: models.TypeText},
			service.QuestionInput{Code: "b", Text: "B", Type: models.TypeText},
		)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			code := "a"
			if i%2 == 1 {
				code = "b"
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{code: raw(`"x"`)})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM responses WHERE version_id = $1`, v.ID).Scan(&count))
		assert.Equal(t, 1, count)

		state := testutil.Must(t, s.responses.StatusFor(ctx, v.ID, "A001"))
		assert.Len(t, state.Answers, 2)
	})

	t.Run("overview and version resolution", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		primary := s.publishedForm(t, "main", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText})
		s.publishedForm(t, "extra", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText})
		testutil.Must(t, s.questionnaires.Create(ctx, service.CreateQuestionnaireInput{Code: "empty", Title: "No versions"}))
		testutil.Must(t, s.questionnaires.SetPrimary(ctx, "main", true))

		testutil.Must(t, s.responses.Save(ctx, primary.ID, "A001", map[string]json.RawMessage{"q1": raw(`"x"`)}))

		// A newer published version does not move students already answering
		v2 := testutil.Must(t, s.versions.CloneVersion(ctx, primary.ID))
		testutil.Must(t, s.versions.Publish(ctx, v2.ID))
		resolved := testutil.Must(t, s.responses.ResolveVersion(ctx, "main", "A001", nil))
		assert.Equal(t, primary.ID, resolved.ID)
		resolved = testutil.Must(t, s.responses.ResolveVersion(ctx, "main", "B002", nil))
		assert.Equal(t, v2.ID, resolved.ID)

		overview := testutil.Must(t, s.responses.Overview(ctx, "A001"))
		require.NotNil(t, overview.Primary)
		assert.Equal(t, "main", overview.Primary.Code)
		assert.Equal(t, models.ResponseInProgress, overview.Primary.Status)
		assert.Equal(t, 100, overview.Primary.Progress)
		require.Len(t, overview.Items, 1)
		assert.Equal(t, "extra", overview.Items[0].Code)
		assert.Equal(t, models.ResponseNew, overview.Items[0].Status)

		state := testutil.Must(t, s.responses.StatusFor(ctx, primary.ID, "nobody"))
		assert.Equal(t, models.ResponseNew, state.Status)
		assert.Empty(t, state.Answers)
	})

	t.Run("unpublish returns a version to draft", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v1 := s.publishedForm(t, "x")
		v2 := testutil.Must(t, s.versions.CloneVersion(ctx, v1.ID))
		v2 = testutil.Must(t, s.versions.SetStatus(ctx, v2.ID, models.VersionPublished))
		require.True(t, v2.IsLatestPublished)

		v2 = testutil.Must(t, s.versions.Unpublish(ctx, v2.ID))
		assert.Equal(t, models.VersionDraft, v2.Status)
		assert.Nil(t, v2.PublishedAt)
		assert.False(t, v2.IsLatestPublished)

		// the older published version is the latest again
		d1 := testutil.Must(t, s.versions.GetVersion(ctx, v1.ID))
		assert.True(t, d1.IsLatestPublished)

		_, err := s.versions.Unpublish(ctx, v2.ID)
		var state *service.InvalidStateError
		require.True(t, errors.As(err, &state), "got %v", err)
		assert.Equal(t, service.ReasonVersionNotPublished, state.Reason)

		_, err = s.versions.SetStatus(ctx, v2.ID, "archived")
		var verr *service.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Contains(t, verr.Fields, "status")

		v1 = testutil.Must(t, s.versions.SetStatus(ctx, v1.ID, models.VersionDraft))
		assert.Equal(t, models.VersionDraft, v1.Status)
	})

	t.Run("reorder swaps two sections", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		testutil.Must(t, s.questionnaires.Create(ctx, service.CreateQuestionnaireInput{Code: "x", Title: "X"}))
		v := testutil.Must(t, s.versions.CreateVersion(ctx, "x"))
		first := testutil.Must(t, s.structure.CreateSection(ctx, v.ID, service.SectionInput{Title: "First"}))
		second := testutil.Must(t, s.structure.CreateSection(ctx, v.ID, service.SectionInput{Title: "Second"}))
		third := testutil.Must(t, s.structure.CreateSection(ctx, v.ID, service.SectionInput{Title: "Third"}))

		sections := testutil.Must(t, s.structure.ReorderSections(ctx, v.ID, first.ID, third.ID))
		require.Len(t, sections, 3)

		detail := testutil.Must(t, s.versions.GetVersion(ctx, v.ID))
		require.Len(t, detail.Sections, 3)
		assert.Equal(t, []string{"Third", "Second", "First"},
			[]string{detail.Sections[0].Title, detail.Sections[1].Title, detail.Sections[2].Title})
		assert.Equal(t, first.Order, detail.Sections[0].Order)
		assert.Equal(t, second.Order, detail.Sections[1].Order)
		assert.Equal(t, third.Order, detail.Sections[2].Order)

		_, err := s.structure.ReorderSections(ctx, v.ID, first.ID, first.ID)
		var verr *service.ValidationError
		assert.True(t, errors.As(err, &verr), "got %v", err)

		other := s.publishedForm(t, "y")
		foreign := testutil.Must(t, s.versions.GetVersion(ctx, other.ID)).Sections[0]
		_, err = s.structure.ReorderSections(ctx, v.ID, first.ID, foreign.ID)
		var notFound *service.NotFoundError
		assert.True(t, errors.As(err, &notFound), "got %v", err)
	})

	t.Run("unpublished version with answers stays frozen", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "x",
			service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText},
			service.QuestionInput{Code: "q2", Text: "Q2", Type: models.TypeText},
		)
		testutil.Must(t, s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{"q1": raw(`"hi"`)}))
		testutil.Must(t, s.versions.Unpublish(ctx, v.ID))

		detail := testutil.Must(t, s.versions.GetVersion(ctx, v.ID))
		section := detail.Sections[0]
		q1 := section.Questions[0]

		assertFrozen := func(t *testing.T, err error) {
			t.Helper()
			var conflict *service.ConflictError
			require.True(t, errors.As(err, &conflict), "got %v", err)
			assert.Equal(t, service.ReasonVersionHasResponses, conflict.Reason)
		}

		_, err := s.structure.UpdateQuestion(ctx, q1.ID, service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeNumber})
		assertFrozen(t, err)
		assertFrozen(t, s.structure.DeleteQuestion(ctx, q1.ID))
		_, err = s.structure.CreateSection(ctx, v.ID, service.SectionInput{Title: "More"})
		assertFrozen(t, err)
		assertFrozen(t, s.structure.DeleteSection(ctx, section.ID))

		// republishing keeps the collected answer readable
		testutil.Must(t, s.versions.Publish(ctx, v.ID))
		state := testutil.Must(t, s.responses.StatusFor(ctx, v.ID, "A001"))
		assert.Equal(t, models.StringValue("hi"), state.Answers["q1"])

		// a draft without answers stays editable
		clone := testutil.Must(t, s.versions.CloneVersion(ctx, v.ID))
		cloned := testutil.Must(t, s.versions.GetVersion(ctx, clone.ID))
		_, err = s.structure.UpdateQuestion(ctx, cloned.Sections[0].Questions[0].ID,
			service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeNumber})
		require.NoError(t, err)
	})

	t.Run("finalize of a finalized response ignores later changes", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "x", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText, Required: true})
		first := testutil.Must(t, s.responses.Finalize(ctx, v.ID, "A001", map[string]json.RawMessage{"q1": raw(`"done"`)}))

		again, err := s.responses.Finalize(ctx, v.ID, "A001", map[string]json.RawMessage{"unknown": raw(`1`)})
		require.NoError(t, err)
		assert.Equal(t, first.FinalizedAt, again.FinalizedAt)

		v2 := testutil.Must(t, s.versions.CloneVersion(ctx, v.ID))
		testutil.Must(t, s.versions.Publish(ctx, v2.ID))
		testutil.Must(t, s.versions.Unpublish(ctx, v.ID))

		again, err = s.responses.Finalize(ctx, v.ID, "A001", map[string]json.RawMessage{"q1": raw(`"changed"`)})
		require.NoError(t, err)
		assert.Equal(t, models.ResponseFinalized, again.Status)
		assert.Equal(t, models.StringValue("done"), again.Answers["q1"])

		// without a finalized response the usual checks apply
		_, err = s.responses.Finalize(ctx, v.ID, "B002", map[string]json.RawMessage{"q1": raw(`"x"`)})
		var state *service.InvalidStateError
		require.True(t, errors.As(err, &state), "got %v", err)
		assert.Equal(t, service.ReasonVersionNotPublished, state.Reason)
	})

	t.Run("overview hides an inactive primary", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		s.publishedForm(t, "main", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText})
		s.publishedForm(t, "extra", service.QuestionInput{Code: "q1", Text: "Q1", Type: models.TypeText})
		testutil.Must(t, s.questionnaires.SetPrimary(ctx, "main", true))

		inactive := models.QuestionnaireInactive
		testutil.Must(t, s.questionnaires.Update(ctx, "main", service.UpdateQuestionnaireInput{Status: &inactive}))

		overview := testutil.Must(t, s.responses.Overview(ctx, "A001"))
		assert.Nil(t, overview.Primary)
		require.Len(t, overview.Items, 1)
		assert.Equal(t, "extra", overview.Items[0].Code)
	})

	t.Run("wide table and csv export", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		v := s.publishedForm(t, "x",
			service.QuestionInput{Code: "comment", Text: "Comment", Type: models.TypeTextarea},
			service.QuestionInput{Code: "hobbies", Text: "Hobbies", Type: models.TypeMultiChoice,
				Options: []service.OptionInput{{Value: "art"}, {Value: "sport"}}},
		)
		testutil.Must(t, s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{
			"comment": raw(`"line one,\nline \"two\""`),
			"hobbies": raw(`["art", "sport"]`),
		}))
		testutil.Must(t, s.responses.Save(ctx, v.ID, "B002", map[string]json.RawMessage{"comment": raw(`"ok"`)}))

		table := testutil.Must(t, s.reports.WideTable(ctx, v.ID, service.WideFilter{UserCode: "a0"}, 1, 10))
		assert.Equal(t, 1, table.Total)
		assert.Equal(t, []string{"comment", "hobbies"}, table.QuestionCodes)
		assert.Equal(t, service.ReservedColumns, table.BaseColumns)
		require.Len(t, table.Items, 1)
		assert.Equal(t, "A001", table.Items[0]["user_code"])

		page := testutil.Must(t, s.reports.WideTable(ctx, v.ID, service.WideFilter{}, 2, 1))
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "B002", page.Items[0]["user_code"])

		var buf bytes.Buffer
		require.NoError(t, s.reports.ExportCSV(ctx, v.ID, service.WideFilter{}, &buf))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)

		header := records[0]
		col := func(name string) int {
			for i, h := range header {
				if h == name {
					return i
				}
			}
			t.Fatalf("column %s missing", name)
			return -1
		}
		assert.Equal(t, "line one,\nline \"two\"", records[1][col("comment")])
		assert.Equal(t, "art|sport", records[1][col("hobbies")])
		assert.Equal(t, "", records[2][col("hobbies")])
	})

	t.Run("ml recompute continues on error", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "model.json"),
			[]byte(`{"intercept": -1, "coefficients": {"age": 0.1}}`), 0o600))

		v := s.publishedForm(t, "x", service.QuestionInput{Code: "age", Text: "Age", Type: models.TypeNumber})
		testutil.Must(t, s.versions.UpdateMetadata(ctx, v.ID, raw(`{"ml_binding": {
			"runtime": "linear", "artifact_path": "model.json", "feature_order": ["age"],
			"labels": {"positive": "high", "negative": "low"}
		}}`)))

		testutil.Must(t, s.responses.Save(ctx, v.ID, "A001", map[string]json.RawMessage{"age": raw(`30`)}))
		testutil.Must(t, s.responses.Save(ctx, v.ID, "B002", map[string]json.RawMessage{}))

		dry := testutil.Must(t, s.ml.Recompute(ctx, v.ID, service.RecomputeOptions{DryRun: true}))
		assert.Equal(t, 2, dry.Total)
		assert.Equal(t, 1, dry.OK)
		assert.Equal(t, 1, dry.Errors)
		require.Len(t, dry.Failures, 1)
		assert.Equal(t, string(ml.KindFeatureMappingIncomplete), dry.Failures[0].Status)

		var scored int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM responses WHERE ml_status IS NOT NULL`).Scan(&scored))
		assert.Equal(t, 0, scored)

		result := testutil.Must(t, s.ml.Recompute(ctx, v.ID, service.RecomputeOptions{Limit: 1}))
		assert.Equal(t, 1, result.Total)
		assert.Equal(t, 1, result.OK)

		table := testutil.Must(t, s.reports.WideTable(ctx, v.ID, service.WideFilter{UserCode: "A001"}, 1, 10))
		require.Len(t, table.Items, 1)
		label, ok := table.Items[0]["ml_label"].(*string)
		require.True(t, ok)
		require.NotNil(t, label)
		assert.Equal(t, "high", *label)

		// Missing binding is a validation error
		other := s.publishedForm(t, "y")
		_, err := s.ml.Recompute(ctx, other.ID, service.RecomputeOptions{})
		var verr *service.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("import creates draft from definition", func(t *testing.T) {
		testutil.ResetDatabase(t, db)
		def, err := service.ParseDefinition([]byte(`
code: imported
title: Imported
sections:
  - title: One
    questions:
      - {code: q1, text: First, type: scale_1_5, required: true}
      - code: q2
        text: Second
        type: single_choice
        options:
          - {value: a, label: A}
`))
		require.NoError(t, err)

		result, err := s.imports.Import(ctx, def, service.ImportOptions{Publish: true, Primary: true})
		require.NoError(t, err)
		assert.True(t, result.CreatedQuestionnaire)
		assert.Equal(t, 1, result.Sections)
		assert.Equal(t, 2, result.Questions)
		assert.True(t, result.Questionnaire.IsPrimary)
		assert.Equal(t, models.VersionPublished, result.Version.Status)

		again, err := s.imports.Import(ctx, def, service.ImportOptions{})
		require.NoError(t, err)
		assert.False(t, again.CreatedQuestionnaire)
		assert.Equal(t, 2, again.Version.Number)
		assert.Equal(t, models.VersionDraft, again.Version.Status)
		assert.True(t, again.Questionnaire.IsPrimary)
	})
}
