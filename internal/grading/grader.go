package grading

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/xcalificator/grader/internal/answers"
	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"

	"github.com/samber/lo"
)

// totalTolerance is how far an engine's reported total may drift from the
// sum of its per-question results.
const totalTolerance = 0.01

// JudgmentEngine grades open-ended answers against their key entries.
type JudgmentEngine interface {
	Judge(ctx context.Context, req model.JudgmentRequest) (*model.JudgmentResult, error)
}

// Grader grades one student's responses to one exam.
type Grader struct {
	engine  JudgmentEngine
	phrases Phrases
	unknown model.UnknownTypePolicy
	metrics *metrics.Metrics
}

type Option func(*Grader)

func WithPhrases(p Phrases) Option { return func(g *Grader) { g.phrases = p } }
func WithUnknownTypePolicy(p model.UnknownTypePolicy) Option {
	return func(g *Grader) { g.unknown = p }
}
func WithMetrics(m *metrics.Metrics) Option { return func(g *Grader) { g.metrics = m } }

// New returns a Grader that sends open-ended questions to engine.
func New(engine JudgmentEngine, opts ...Option) *Grader {
	g := &Grader{
		engine:  engine,
		phrases: EnglishPhrases{},
		unknown: model.UnknownAsOpen,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GradeOption adjusts a single Grade call.
type GradeOption func(*gradeOptions)

type gradeOptions struct {
	deferOpen bool
	phrases   Phrases
}

// DeferOpen leaves open-ended questions pending instead of calling the
// judgment engine.
func DeferOpen() GradeOption { return func(o *gradeOptions) { o.deferOpen = true } }

// Phrases returns the feedback phrases Grade uses for ctx.
func (g *Grader) Phrases(ctx context.Context) Phrases {
	return phrasesFrom(ctx, g.phrases)
}

// Grade grades responses against the exam's answer key. Objective questions
// are graded locally; open-ended ones go to the judgment engine in a single
// call. When the exam cannot be partitioned, everything goes to the engine.
// Any engine failure fails the whole call.
func (g *Grader) Grade(ctx context.Context, exam model.Exam, responses []model.StudentResponseEntry,
	opts ...GradeOption) (*model.GradeDetail, error) {
	var o gradeOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	o.phrases = phrasesFrom(ctx, g.phrases)
	path, detail, err := g.grade(ctx, exam, responses, o)
	g.metrics.ObserveGrading(path, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	slog.Debug("exam graded", "exam_id", exam.ID, "path", path,
		"total", detail.TotalScore, "max", detail.MaxScore, "open", detail.HasOpenQuestions)
	return detail, nil
}

func (g *Grader) grade(ctx context.Context, exam model.Exam, responses []model.StudentResponseEntry,
	o gradeOptions) (string, *model.GradeDetail, error) {
	keyDoc := answers.Decode(exam.AnswerKey)
	keys, err := answers.KeyFromDocument(keyDoc)
	content := answers.ParseContent(exam.Content)

	switch {
	case errors.Is(err, model.ErrInvalidAnswerKeyFormat) && keyDoc.Shape == answers.ShapeObject:
		slog.Warn("answer key is not a list, grading through the judgment engine", "exam_id", exam.ID)
		detail, err := g.gradeFallback(ctx, nil, keyDoc.Raw, responses, content.Rubric)
		return metrics.PathFallback, detail, err
	case errors.Is(err, model.ErrInvalidAnswerKeyFormat):
		return metrics.PathFallback, nil, fmt.Errorf("exam %s: %w: %w", exam.ID, model.ErrMissingAnswerKey, err)
	case err != nil:
		return metrics.PathFallback, nil, fmt.Errorf("exam %s: %w", exam.ID, err)
	}

	if !content.HasTypes() {
		slog.Info("exam content declares no question types, grading through the judgment engine", "exam_id", exam.ID)
		detail, err := g.gradeFallback(ctx, keys, nil, responses, content.Rubric)
		return metrics.PathFallback, detail, err
	}

	p := Partition(keys, responses, content.Types, g.unknown, o.phrases)
	if o.deferOpen {
		p = p.deferOpen(o.phrases)
	}
	if len(p.OpenKeys) == 0 {
		return metrics.PathObjectiveOnly, objectiveDetail(p), nil
	}

	req := model.JudgmentRequest{
		StudentAnswers: p.OpenResponses,
		AnswerKey:      p.OpenKeys,
		Rubric:         content.Rubric,
	}
	want := lo.Map(p.OpenKeys, func(k model.AnswerKeyEntry, _ int) int { return k.QuestionNumber })
	res, err := g.judge(ctx, req, want, true)
	if err != nil {
		return metrics.PathMixed, nil, err
	}
	fillFromRequest(res.Questions, req)

	score, maxScore := engineTotals(res, p.OpenMax)
	merged := slices.Concat(p.ObjectiveResults, p.PendingResults, res.Questions)
	sortByNumber(merged)
	return metrics.PathMixed, &model.GradeDetail{
		TotalScore:       round2(p.ObjectiveScore + score),
		MaxScore:         round2(p.ObjectiveMax + p.PendingMax + maxScore),
		Questions:        merged,
		AutoGraded:       true,
		HasOpenQuestions: len(p.PendingResults) > 0,
	}, nil
}

func objectiveDetail(p PartitionResult) *model.GradeDetail {
	merged := slices.Concat(p.ObjectiveResults, p.PendingResults)
	sortByNumber(merged)
	return &model.GradeDetail{
		TotalScore:       p.ObjectiveScore,
		MaxScore:         round2(p.ObjectiveMax + p.PendingMax),
		Questions:        merged,
		AutoGraded:       true,
		HasOpenQuestions: len(p.PendingResults) > 0,
	}
}

// gradeFallback hands the whole exam to the engine. rawKey is sent when the
// key could not be normalized. With a normalized key, answers and results
// for numbers outside the key are ignored.
func (g *Grader) gradeFallback(ctx context.Context, keys []model.AnswerKeyEntry, rawKey []byte,
	responses []model.StudentResponseEntry, rubric string) (*model.GradeDetail, error) {
	responses = answers.UniqueResponses(responses)
	keyed := answers.KeyIndex(keys)
	if keys != nil {
		responses = lo.Filter(responses, func(r model.StudentResponseEntry, _ int) bool {
			_, ok := keyed[r.QuestionNumber]
			return ok
		})
	}
	req := model.JudgmentRequest{
		StudentAnswers: lo.Map(responses, func(r model.StudentResponseEntry, _ int) model.JudgedAnswer {
			return model.JudgedAnswer{QuestionNumber: r.QuestionNumber, AnswerText: r.AnswerText}
		}),
		AnswerKey:    keys,
		RawAnswerKey: rawKey,
		Rubric:       rubric,
	}

	// Without a normalized key only the answered questions are known.
	want := lo.Map(responses, func(r model.StudentResponseEntry, _ int) int { return r.QuestionNumber })
	if keys != nil {
		want = lo.Map(keys, func(k model.AnswerKeyEntry, _ int) int { return k.QuestionNumber })
	}
	res, err := g.judge(ctx, req, want, false)
	if err != nil {
		return nil, err
	}
	if keys != nil {
		kept := lo.Filter(res.Questions, func(q model.GradedQuestion, _ int) bool {
			_, ok := keyed[q.QuestionNumber]
			return ok
		})
		if len(kept) != len(res.Questions) {
			slog.Warn("judgment engine graded questions outside the answer key, ignoring them",
				"ignored", len(res.Questions)-len(kept))
			res.Questions = kept
			res.TotalScore, res.MaxScore = nil, nil
		}
	}
	fillFromRequest(res.Questions, req)

	computedMax := lo.SumBy(keys, func(k model.AnswerKeyEntry) float64 { return k.MaxPoints })
	if keys == nil {
		computedMax = lo.SumBy(res.Questions, func(q model.GradedQuestion) float64 { return q.PointsPossible })
	}
	score, maxScore := engineTotals(res, computedMax)
	sortByNumber(res.Questions)
	return &model.GradeDetail{
		TotalScore: round2(score),
		MaxScore:   round2(maxScore),
		Questions:  res.Questions,
		AutoGraded: true,
	}, nil
}

// judge calls the engine and checks that its answer covers want. In strict
// mode results for questions outside want are rejected.
func (g *Grader) judge(ctx context.Context, req model.JudgmentRequest, want []int, strict bool) (*model.JudgmentResult, error) {
	res, err := g.engine.Judge(ctx, req)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		g.metrics.EngineCall(outcome)
		if errors.Is(err, model.ErrJudgmentEngine) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrJudgmentEngine, err)
	}
	if err := checkJudgment(res, want, strict); err != nil {
		g.metrics.EngineCall(metrics.OutcomeMalformed)
		return nil, fmt.Errorf("%w: malformed response: %w", model.ErrJudgmentEngine, err)
	}
	g.metrics.EngineCall(metrics.OutcomeOK)
	return res, nil
}

func checkJudgment(res *model.JudgmentResult, want []int, strict bool) error {
	if res == nil {
		return errors.New("empty result")
	}
	expected := lo.SliceToMap(want, func(n int) (int, bool) { return n, true })
	seen := make(map[int]bool, len(res.Questions))
	for _, q := range res.Questions {
		if seen[q.QuestionNumber] {
			return fmt.Errorf("question %d graded twice", q.QuestionNumber)
		}
		seen[q.QuestionNumber] = true
		if strict && !expected[q.QuestionNumber] {
			return fmt.Errorf("question %d was not submitted", q.QuestionNumber)
		}
	}
	for _, n := range want {
		if !seen[n] {
			return fmt.Errorf("question %d not graded", n)
		}
	}
	if res.TotalScore != nil {
		sum := lo.SumBy(res.Questions, func(q model.GradedQuestion) float64 { return q.PointsAwarded })
		if math.Abs(*res.TotalScore-sum) > totalTolerance {
			return fmt.Errorf("total %.2f does not match question sum %.2f", *res.TotalScore, sum)
		}
	}
	return nil
}

// engineTotals returns the engine's score and max, falling back to the
// per-question sum and to computedMax when they are omitted.
func engineTotals(res *model.JudgmentResult, computedMax float64) (score, maxScore float64) {
	score = lo.SumBy(res.Questions, func(q model.GradedQuestion) float64 { return q.PointsAwarded })
	if res.TotalScore != nil {
		score = *res.TotalScore
	}
	maxScore = computedMax
	if res.MaxScore != nil {
		maxScore = *res.MaxScore
	}
	return score, maxScore
}

// fillFromRequest completes engine results with what the request already
// knew: the student's answer, the key answer and the question type.
func fillFromRequest(results []model.GradedQuestion, req model.JudgmentRequest) {
	given := lo.KeyBy(req.StudentAnswers, func(a model.JudgedAnswer) int { return a.QuestionNumber })
	key := answers.KeyIndex(req.AnswerKey)
	for i := range results {
		q := &results[i]
		q.Pending = false
		a, ok := given[q.QuestionNumber]
		if ok && q.StudentAnswer == "" {
			q.StudentAnswer = a.AnswerText
		}
		if ok && q.QuestionType == model.TypeUnknown {
			q.QuestionType = a.QuestionType
		}
		if k, ok := key[q.QuestionNumber]; ok && q.CorrectAnswer == "" {
			q.CorrectAnswer = k.CorrectAnswer
		}
	}
}

func sortByNumber(qs []model.GradedQuestion) {
	slices.SortStableFunc(qs, func(a, b model.GradedQuestion) int {
		return cmp.Compare(a.QuestionNumber, b.QuestionNumber)
	})
}
