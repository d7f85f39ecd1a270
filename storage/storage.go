// Package storage persists view records, unified tasks and link groups
// in Azure Table Storage, with a redis read cache and a change-event
// queue fed after every successful write.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"unitask/domain"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("record not found")

// TableNames configures the backing tables and queue.
type TableNames struct {
	Todo        string
	WBS         string
	KanbanCards string
	KanbanLanes string
	Gantt       string
	Unified     string
	Links       string
	ChangeQueue string
}

// Tables bundles the per-view repositories over one storage account.
type Tables struct {
	Todo    *TodoTable
	WBS     *WBSTable
	Kanban  *KanbanTable
	Gantt   *GanttTable
	Unified *UnifiedTable
	Links   *LinkTable
}

// New creates the table set from the given connection string. projectID
// becomes the partition key for every table.
func New(connStr, projectID string, names TableNames, logger *log.Logger) (*Tables, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	queue, err := azqueue.NewQueueClientFromConnectionString(connStr, names.ChangeQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}

	mk := func(table string) tableClient {
		return tableClient{
			client:    svc.NewClient(table),
			queue:     queue,
			partition: projectID,
			logger:    logger,
		}
	}
	return &Tables{
		Todo:    &TodoTable{t: mk(names.Todo)},
		WBS:     &WBSTable{t: mk(names.WBS)},
		Kanban:  &KanbanTable{t: mk(names.KanbanCards), lanes: mk(names.KanbanLanes)},
		Gantt:   &GanttTable{t: mk(names.Gantt)},
		Unified: &UnifiedTable{t: mk(names.Unified)},
		Links:   &LinkTable{t: mk(names.Links)},
	}, nil
}

// recordEntity stores any record as a JSON payload column, keyed
// PartitionKey=projectID, RowKey=recordID.
type recordEntity struct {
	aztables.Entity
	Payload string `json:"Payload"`
}

type tableClient struct {
	client    *aztables.Client
	queue     *azqueue.QueueClient
	partition string
	logger    *log.Logger
}

func notFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func (t *tableClient) get(ctx context.Context, rowKey string, out any) error {
	resp, err := t.client.GetEntity(ctx, t.partition, rowKey, nil)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return err
	}
	var ent recordEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return err
	}
	return sonic.Unmarshal([]byte(ent.Payload), out)
}

func (t *tableClient) upsert(ctx context.Context, rowKey string, rec any) error {
	payload, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	ent := recordEntity{
		Entity:  aztables.Entity{PartitionKey: t.partition, RowKey: rowKey},
		Payload: string(payload),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = t.client.UpsertEntity(ctx, data, nil)
	return err
}

func (t *tableClient) remove(ctx context.Context, rowKey string) error {
	_, err := t.client.DeleteEntity(ctx, t.partition, rowKey, nil)
	if notFound(err) {
		return ErrNotFound
	}
	return err
}

// each walks every payload in this table's partition.
func (t *tableClient) each(ctx context.Context, fn func(payload []byte) error) error {
	filter := "PartitionKey eq '" + t.partition + "'"
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			var ent recordEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return err
			}
			if err := fn([]byte(ent.Payload)); err != nil {
				return err
			}
		}
	}
	return nil
}

// announce enqueues a change event after a successful write. The write
// already landed, so a queue failure is logged and swallowed.
func (t *tableClient) announce(ctx context.Context, eventType string, view domain.ViewType, entityID string, rec any) {
	if t.queue == nil {
		return
	}
	ev := domain.TaskChangedEvent{
		Type:      eventType,
		ViewType:  view,
		EntityID:  entityID,
		ProjectID: t.partition,
		Timestamp: time.Now().UTC().Unix(),
	}
	if rec != nil {
		if data, err := sonic.Marshal(rec); err == nil {
			ev.Data = data
		}
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		t.logger.WithError(err).Error("change event marshal failed")
		return
	}
	if _, err := t.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
		t.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"entity_id":  entityID,
		}).Error("change event enqueue failed")
	}
}

// TodoTable persists todo records.
type TodoTable struct{ t tableClient }

func (s *TodoTable) FindByID(ctx context.Context, id string) (domain.TodoRecord, error) {
	var rec domain.TodoRecord
	err := s.t.get(ctx, id, &rec)
	return rec, err
}

func (s *TodoTable) Create(ctx context.Context, rec domain.TodoRecord) (domain.TodoRecord, error) {
	if err := s.t.upsert(ctx, rec.ID, rec); err != nil {
		return domain.TodoRecord{}, err
	}
	s.t.announce(ctx, domain.TaskCreatedEvent, domain.ViewTodo, rec.ID, rec)
	return rec, nil
}

func (s *TodoTable) Update(ctx context.Context, rec domain.TodoRecord) error {
	if err := s.t.upsert(ctx, rec.ID, rec); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskUpdatedEvent, domain.ViewTodo, rec.ID, rec)
	return nil
}

func (s *TodoTable) Delete(ctx context.Context, id string) error {
	if err := s.t.remove(ctx, id); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskDeletedEvent, domain.ViewTodo, id, nil)
	return nil
}

func (s *TodoTable) FindAll(ctx context.Context) ([]domain.TodoRecord, error) {
	var out []domain.TodoRecord
	err := s.t.each(ctx, func(payload []byte) error {
		var rec domain.TodoRecord
		if err := sonic.Unmarshal(payload, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// WBSTable persists work-breakdown-structure records.
type WBSTable struct{ t tableClient }

func (s *WBSTable) FindByID(ctx context.Context, id string) (domain.WBSRecord, error) {
	var rec domain.WBSRecord
	err := s.t.get(ctx, id, &rec)
	return rec, err
}

func (s *WBSTable) Create(ctx context.Context, rec domain.WBSRecord) (domain.WBSRecord, error) {
	if err := s.t.upsert(ctx, rec.ID, rec); err != nil {
		return domain.WBSRecord{}, err
	}
	s.t.announce(ctx, domain.TaskCreatedEvent, domain.ViewWBS, rec.ID, rec)
	return rec, nil
}

func (s *WBSTable) Update(ctx context.Context, rec domain.WBSRecord) error {
	if err := s.t.upsert(ctx, rec.ID, rec); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskUpdatedEvent, domain.ViewWBS, rec.ID, rec)
	return nil
}

func (s *WBSTable) Delete(ctx context.Context, id string) error {
	if err := s.t.remove(ctx, id); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskDeletedEvent, domain.ViewWBS, id, nil)
	return nil
}

func (s *WBSTable) FindAll(ctx context.Context) ([]domain.WBSRecord, error) {
	var out []domain.WBSRecord
	err := s.t.each(ctx, func(payload []byte) error {
		var rec domain.WBSRecord
		if err := sonic.Unmarshal(payload, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// KanbanTable persists cards plus the board's lane layout.
type KanbanTable struct {
	t     tableClient
	lanes tableClient
}

func (s *KanbanTable) FindByID(ctx context.Context, id string) (domain.KanbanCard, error) {
	var card domain.KanbanCard
	err := s.t.get(ctx, id, &card)
	return card, err
}

func (s *KanbanTable) Create(ctx context.Context, card domain.KanbanCard) (domain.KanbanCard, error) {
	if err := s.t.upsert(ctx, card.ID, card); err != nil {
		return domain.KanbanCard{}, err
	}
	s.t.announce(ctx, domain.TaskCreatedEvent, domain.ViewKanban, card.ID, card)
	return card, nil
}

func (s *KanbanTable) Update(ctx context.Context, card domain.KanbanCard) error {
	if err := s.t.upsert(ctx, card.ID, card); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskUpdatedEvent, domain.ViewKanban, card.ID, card)
	return nil
}

func (s *KanbanTable) Delete(ctx context.Context, id string) error {
	if err := s.t.remove(ctx, id); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskDeletedEvent, domain.ViewKanban, id, nil)
	return nil
}

func (s *KanbanTable) FindAll(ctx context.Context) ([]domain.KanbanCard, error) {
	var out []domain.KanbanCard
	err := s.t.each(ctx, func(payload []byte) error {
		var card domain.KanbanCard
		if err := sonic.Unmarshal(payload, &card); err != nil {
			return err
		}
		out = append(out, card)
		return nil
	})
	return out, err
}

func (s *KanbanTable) SaveLane(ctx context.Context, lane domain.KanbanLane) error {
	return s.lanes.upsert(ctx, lane.ID, lane)
}

// FindDefaultLane returns the leftmost lane on the board.
func (s *KanbanTable) FindDefaultLane(ctx context.Context) (domain.KanbanLane, error) {
	var best domain.KanbanLane
	found := false
	err := s.lanes.each(ctx, func(payload []byte) error {
		var lane domain.KanbanLane
		if err := sonic.Unmarshal(payload, &lane); err != nil {
			return err
		}
		if !found || lane.Position < best.Position {
			best = lane
			found = true
		}
		return nil
	})
	if err != nil {
		return domain.KanbanLane{}, err
	}
	if !found {
		return domain.KanbanLane{}, ErrNotFound
	}
	return best, nil
}

// GanttTable persists gantt tasks.
type GanttTable struct{ t tableClient }

func (s *GanttTable) FindByID(ctx context.Context, id string) (domain.GanttTask, error) {
	var rec domain.GanttTask
	err := s.t.get(ctx, id, &rec)
	return rec, err
}

func (s *GanttTable) Create(ctx context.Context, rec domain.GanttTask) (domain.GanttTask, error) {
	if err := s.t.upsert(ctx, rec.ID, rec); err != nil {
		return domain.GanttTask{}, err
	}
	s.t.announce(ctx, domain.TaskCreatedEvent, domain.ViewGantt, rec.ID, rec)
	return rec, nil
}

func (s *GanttTable) Update(ctx context.Context, rec domain.GanttTask) error {
	if err := s.t.upsert(ctx, rec.ID, rec); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskUpdatedEvent, domain.ViewGantt, rec.ID, rec)
	return nil
}

func (s *GanttTable) Delete(ctx context.Context, id string) error {
	if err := s.t.remove(ctx, id); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskDeletedEvent, domain.ViewGantt, id, nil)
	return nil
}

// FindAll returns every gantt task in the project, for critical path
// recomputation.
func (s *GanttTable) FindAll(ctx context.Context) ([]domain.GanttTask, error) {
	var out []domain.GanttTask
	err := s.t.each(ctx, func(payload []byte) error {
		var rec domain.GanttTask
		if err := sonic.Unmarshal(payload, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
