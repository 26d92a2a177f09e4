package ragcore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mnemosyne-ai/ragcore/llm"
	"github.com/mnemosyne-ai/ragcore/persistence/memory"
	"github.com/mnemosyne-ai/ragcore/vector"
)

// fakeProvider embeds text as a deterministic letter histogram and
// answers generation calls with a canned response.
type fakeProvider struct {
	failOn      string
	genResponse string
	genCalls    int
	lastPrompt  string
}

func (p *fakeProvider) EmbedText(ctx context.Context, text string, inputType llm.InputType) ([]float32, error) {
	if p.failOn != "" && strings.Contains(text, p.failOn) {
		return nil, llm.ErrEmbeddingUnavailable
	}

	vec := make([]float32, 4)
	for _, r := range text {
		vec[int(r)%4]++
	}
	return vec, nil
}

func (p *fakeProvider) EmbeddingSize() int { return 4 }

func (p *fakeProvider) GenerateText(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	p.genCalls++
	p.lastPrompt = prompt
	return p.genResponse, nil
}

type serviceTestSuite struct {
	suite.Suite
	svc      Service
	index    *memory.Index
	provider *fakeProvider
}

func (suite *serviceTestSuite) SetupTest() {
	suite.provider = &fakeProvider{genResponse: "It runs nightly."}
	suite.index = memory.NewIndex()

	svc, err := NewService(Config{}, suite.provider, suite.index)
	suite.Require().NoError(err)

	suite.svc = svc
}

func (suite *serviceTestSuite) indexFixture(projectID string) *IndexReport {
	report, err := suite.svc.ProcessAndIndex(context.Background(), projectID, []RawDocument{
		{
			ID:       "runbook",
			Text:     "The backup rotation runs nightly.",
			Metadata: map[string]string{"source": "wiki"},
		},
		{
			ID:   "faq",
			Text: "Restores are requested through the operations desk.",
		},
	}, IndexOptions{})
	suite.Require().NoError(err)
	return report
}

func (suite *serviceTestSuite) TestProcessAndIndex() {
	report := suite.indexFixture("p1")

	suite.Equal(2, report.ProcessedDocuments)
	suite.Equal(2, report.AttemptedChunks)
	suite.Equal(2, report.InsertedChunks)
	suite.Zero(report.SkippedChunks)
	suite.Zero(report.FailedChunks)

	info, err := suite.svc.CollectionInfo(context.Background(), "p1")
	suite.Require().NoError(err)

	suite.Equal("collection_p1", info.Name)
	suite.Equal(4, info.EmbeddingSize)
	suite.Equal(2, info.Points)
}

func (suite *serviceTestSuite) TestProcessAndIndexSkipsEmptyDocuments() {
	report, err := suite.svc.ProcessAndIndex(context.Background(), "p1", []RawDocument{
		{ID: "blank", Text: "   \n\t  "},
		{ID: "real", Text: "Only this one has content."},
	}, IndexOptions{})
	suite.Require().NoError(err)

	suite.Equal(1, report.ProcessedDocuments)
	suite.Equal(1, report.InsertedChunks)
}

func (suite *serviceTestSuite) TestProcessAndIndexEmptyBatch() {
	_, err := suite.svc.ProcessAndIndex(context.Background(), "p1", []RawDocument{
		{ID: "blank", Text: "   "},
		{ID: "empty", Text: ""},
	}, IndexOptions{})

	suite.ErrorIs(err, ErrEmptyInput)
}

func (suite *serviceTestSuite) TestProcessAndIndexDropsFailedChunks() {
	suite.provider.failOn = "poison"

	report, err := suite.svc.ProcessAndIndex(context.Background(), "p1", []RawDocument{
		{ID: "good", Text: "A perfectly fine sentence."},
		{ID: "bad", Text: "This poison chunk cannot be embedded."},
	}, IndexOptions{})
	suite.Require().NoError(err)

	suite.Equal(2, report.AttemptedChunks)
	suite.Equal(1, report.InsertedChunks)
	suite.Equal(1, report.FailedChunks)
}

func (suite *serviceTestSuite) TestProcessAndIndexReset() {
	suite.indexFixture("p1")
	suite.indexFixture("p1")

	info, err := suite.svc.CollectionInfo(context.Background(), "p1")
	suite.Require().NoError(err)
	suite.Equal(4, info.Points)

	report, err := suite.svc.ProcessAndIndex(context.Background(), "p1", []RawDocument{
		{ID: "fresh", Text: "A fresh start."},
	}, IndexOptions{Reset: true})
	suite.Require().NoError(err)
	suite.Equal(1, report.InsertedChunks)

	info, err = suite.svc.CollectionInfo(context.Background(), "p1")
	suite.Require().NoError(err)
	suite.Equal(1, info.Points)
}

func (suite *serviceTestSuite) TestProcessAndIndexExplicitZeroOverlap() {
	ctx := context.Background()

	zero := 0
	report, err := suite.svc.ProcessAndIndex(ctx, "p1", []RawDocument{
		{ID: "doc", Text: "Alpha beta. Gamma delta. Epsilon zeta."},
	}, IndexOptions{ChunkSize: 24, OverlapSize: &zero})
	suite.Require().NoError(err)

	suite.Equal(2, report.InsertedChunks)

	// No overlap: the second chunk starts clean, without the tail of the
	// first.
	docs, err := suite.svc.Search(ctx, "p1", "Epsilon zeta", 5)
	suite.Require().NoError(err)

	suite.Require().NotEmpty(docs)
	suite.Equal("Epsilon zeta.", docs[0].Text)
}

func (suite *serviceTestSuite) TestAnswerQuery() {
	suite.indexFixture("p1")

	answer, err := suite.svc.AnswerQuery(context.Background(), "p1", "backup rotation", 3)
	suite.Require().NoError(err)

	suite.Equal("It runs nightly.", answer.Answer)
	suite.Contains(answer.FullPrompt, "## Question:")
	suite.Contains(answer.FullPrompt, "backup rotation")
	suite.Contains(answer.FullPrompt, "The backup rotation runs nightly.")
	suite.False(answer.Fallback)

	suite.Require().NotEmpty(answer.ChatHistory)
	suite.Equal(llm.RoleSystem, answer.ChatHistory[0].Role)

	suite.Equal(1, suite.provider.genCalls)
	suite.Equal(answer.FullPrompt, suite.provider.lastPrompt)
}

func (suite *serviceTestSuite) TestAnswerQueryBelowThresholdIsFlaggedFallback() {
	suite.indexFixture("p1")

	// A query sharing no words with the corpus scores every candidate
	// below the fixed threshold; they may only surface flagged.
	answer, err := suite.svc.AnswerQuery(context.Background(), "p1", "zebra quorum", 3)
	suite.Require().NoError(err)

	suite.True(answer.Fallback)
	suite.Equal(1, suite.provider.genCalls)
}

func (suite *serviceTestSuite) TestAnswerQueryNoMatchingContent() {
	ctx := context.Background()

	// An existing but empty collection retrieves nothing; the generator
	// must stay untouched.
	_, err := suite.index.Create(ctx, "collection_p1", suite.provider.EmbeddingSize(), vector.DistanceCosine, false)
	suite.Require().NoError(err)

	_, err = suite.svc.AnswerQuery(ctx, "p1", "anything", 3)
	suite.ErrorIs(err, ErrNoMatchingContent)
	suite.Zero(suite.provider.genCalls)
}

func (suite *serviceTestSuite) TestAnswerQueryUnknownCollection() {
	_, err := suite.svc.AnswerQuery(context.Background(), "never-indexed", "anything", 3)
	suite.ErrorIs(err, vector.ErrCollectionNotFound)
}

func (suite *serviceTestSuite) TestSearch() {
	suite.indexFixture("p1")

	docs, err := suite.svc.Search(context.Background(), "p1", "backup rotation", 3)
	suite.Require().NoError(err)

	suite.Require().NotEmpty(docs)
	suite.Equal("The backup rotation runs nightly.", docs[0].Text)
	suite.Equal("wiki", docs[0].Metadata["source"])
}

func (suite *serviceTestSuite) TestSearchEmptyCollection() {
	ctx := context.Background()

	_, err := suite.index.Create(ctx, "collection_p1", suite.provider.EmbeddingSize(), vector.DistanceCosine, false)
	suite.Require().NoError(err)

	docs, err := suite.svc.Search(ctx, "p1", "anything", 3)
	suite.Require().NoError(err)
	suite.Empty(docs)
}

func (suite *serviceTestSuite) TestResetCollection() {
	ctx := context.Background()

	suite.indexFixture("p1")
	suite.Require().NoError(suite.svc.ResetCollection(ctx, "p1"))

	_, err := suite.svc.CollectionInfo(ctx, "p1")
	suite.ErrorIs(err, vector.ErrCollectionNotFound)

	// Resetting an absent collection stays silent.
	suite.NoError(suite.svc.ResetCollection(ctx, "p1"))
}

func (suite *serviceTestSuite) TestInvalidProjectID() {
	ctx := context.Background()

	_, err := suite.svc.ProcessAndIndex(ctx, "", nil, IndexOptions{})
	suite.ErrorIs(err, ErrInvalidProjectID)

	_, err = suite.svc.AnswerQuery(ctx, "   ", "q", 3)
	suite.ErrorIs(err, ErrInvalidProjectID)

	suite.ErrorIs(suite.svc.ResetCollection(ctx, ""), ErrInvalidProjectID)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(serviceTestSuite))
}
