package fiscal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz"
)

// emitOffline emite los pedidos con la SEFAZ inalcanzable, en orden.
func emitOffline(t *testing.T, env *testEnv, orderIDs ...string) []*entity.FiscalDocument {
	t.Helper()
	env.sefaz.onSubmit(unreachable)
	docs := make([]*entity.FiscalDocument, 0, len(orderIDs))
	for _, id := range orderIDs {
		env.putOrder(id)
		doc, err := env.orch.EmitDocument(context.Background(), tenantID, id, entity.DocumentTypeNFCe)
		require.NoError(t, err)
		require.Equal(t, entity.StatusContingency, doc.Status)
		docs = append(docs, doc)
		time.Sleep(2 * time.Millisecond)
	}
	return docs
}

func TestRetransmitPending_FIFOYCuentaIntentos(t *testing.T) {
	env := newTestEnv(t)
	docs := emitOffline(t, env, "order-1", "order-2")
	before := len(env.sefaz.submissions())

	results, err := env.sweeper(fiscal.SweepConfig{}).RetransmitPending(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	// el barrido envía en orden de emisión original
	sent := env.sefaz.submissions()[before:]
	assert.Equal(t, []string{docs[0].AccessKey, docs[1].AccessKey}, sent)

	for i, r := range results {
		assert.Equal(t, docs[i].ID, r.DocumentID)
		assert.Equal(t, sefaz.OutcomeUnreachable, r.Outcome)
		assert.Equal(t, entity.StatusContingency, r.Status)
		assert.NoError(t, r.Error)
	}

	entries := env.queue(t)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, 1, e.Attempts)
		assert.NotNil(t, e.LastAttemptAt)
		assert.Contains(t, e.LastError, "connection refused")
		assert.Equal(t, entity.StatusContingency, env.document(t, e.DocumentID).Status)
	}

	// sin máximo de intentos: el segundo barrido vuelve a intentar
	_, err = env.sweeper(fiscal.SweepConfig{}).RetransmitPending(context.Background())
	require.NoError(t, err)
	for _, e := range env.queue(t) {
		assert.Equal(t, 2, e.Attempts)
	}

	logs, err := env.store.AuditLogs().List(context.Background(), repository.AuditLogFilter{
		TenantID: tenantID, EntityID: docs[0].ID,
	})
	require.NoError(t, err)
	attempts := 0
	for _, l := range logs {
		if l.Action == entity.AuditActionContingencyAttempt {
			attempts++
		}
	}
	assert.Equal(t, 2, attempts)
}

func TestRetransmitPending_RechazoSaleDeLaCola(t *testing.T) {
	env := newTestEnv(t)
	docs := emitOffline(t, env, "order-1")
	env.sefaz.onSubmit(func(context.Context, string) sefaz.Outcome {
		return sefaz.Rejected("539", "Rejeicao: Duplicidade com diferenca na chave")
	})

	results, err := env.sweeper(fiscal.SweepConfig{}).RetransmitPending(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entity.StatusRejected, results[0].Status)

	doc := env.document(t, docs[0].ID)
	assert.Equal(t, entity.StatusRejected, doc.Status)
	assert.Equal(t, "539", doc.ReasonCode)
	assert.Empty(t, env.queue(t))
}

func TestRetransmitPending_ConsultaAutorizadaNoReenvia(t *testing.T) {
	env := newTestEnv(t)
	docs := emitOffline(t, env, "order-1")
	before := len(env.sefaz.submissions())
	env.sefaz.onQuery(func(key string) sefaz.Outcome {
		return sefaz.Accepted(key, "131240000000099", nil)
	})

	results, err := env.sweeper(fiscal.SweepConfig{}).RetransmitPending(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sefaz.OutcomeAccepted, results[0].Outcome)

	assert.Len(t, env.sefaz.submissions(), before, "no se reenvía un documento ya autorizado")
	doc := env.document(t, docs[0].ID)
	assert.Equal(t, entity.StatusAuthorized, doc.Status)
	assert.Equal(t, "131240000000099", doc.Protocol)
	assert.Empty(t, env.queue(t))
}

func TestRetransmitPending_ColaVacia(t *testing.T) {
	env := newTestEnv(t)
	results, err := env.sweeper(fiscal.SweepConfig{}).RetransmitPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetransmitPending_LockOcupadoNoBarre(t *testing.T) {
	env := newTestEnv(t)
	emitOffline(t, env, "order-1")
	before := len(env.sefaz.submissions())
	locker := &fakeLocker{}

	results, err := env.sweeper(fiscal.SweepConfig{}, fiscal.WithLocker(locker)).RetransmitPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 1, locker.calls)
	assert.Len(t, env.sefaz.submissions(), before)
	assert.Len(t, env.queue(t), 1)
}

func TestRetransmitPending_EntradaHuerfanaSeElimina(t *testing.T) {
	env := newTestEnv(t)
	err := env.store.Queue().Enqueue(context.Background(), &entity.ContingencyQueueEntry{
		ID: "entry-1", TenantID: tenantID, DocumentID: "no-existe",
		UF: "MG", Model: "65", Environment: entity.EnvironmentHomologation, IssuedAt: time.Now(),
	})
	require.NoError(t, err)

	results, err := env.sweeper(fiscal.SweepConfig{}).RetransmitPending(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Error)
	assert.Empty(t, env.queue(t))
}

func TestRetransmitPending_LimitePorEntrada(t *testing.T) {
	env := newTestEnv(t)
	docs := emitOffline(t, env, "order-1")
	env.sefaz.onSubmit(func(ctx context.Context, _ string) sefaz.Outcome {
		<-ctx.Done()
		return sefaz.Unreachable("timeout")
	})

	start := time.Now()
	results, err := env.sweeper(fiscal.SweepConfig{EntryTimeout: 50 * time.Millisecond}).RetransmitPending(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, results, 1)
	assert.Equal(t, sefaz.OutcomeUnreachable, results[0].Outcome)
	assert.Equal(t, entity.StatusContingency, env.document(t, docs[0].ID).Status)
	assert.Len(t, env.queue(t), 1)
}
