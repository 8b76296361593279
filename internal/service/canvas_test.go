package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
	"collabcanvas/internal/repository/mocks"
	"collabcanvas/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCanvasService(t *testing.T) (*service.CanvasService, *mocks.ElementRepository, *mocks.CanvasCacheRepository, *mocks.RoomRepository) {
	t.Helper()
	mockElementRepo := new(mocks.ElementRepository)
	mockCacheRepo := new(mocks.CanvasCacheRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	canvasService := service.NewCanvasService(mockElementRepo, mockCacheRepo, mockRoomRepo, time.Minute)
	return canvasService, mockElementRepo, mockCacheRepo, mockRoomRepo
}

// --- 测试 LoadCanvas 方法 ---

func TestCanvasService_LoadCanvas_CacheHit(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)
	cached := []domain.Element{{RoomID: roomID, ElementID: "e1", Kind: "path", Data: `{"points":[1,2]}`}}

	mockCacheRepo.On("GetElements", ctx, roomID).Return(cached, nil).Once()

	// Act
	elements, err := canvasService.LoadCanvas(ctx, roomID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, cached, elements)

	// Verify: 缓存命中时不应回源数据库
	mockCacheRepo.AssertExpectations(t)
	mockElementRepo.AssertNotCalled(t, "FindByRoom", mock.Anything, mock.Anything)
}

func TestCanvasService_LoadCanvas_CacheMissCompactsAndWarms(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)

	// 追加日志里 e1 有两个版本，压缩后应保留最新数据、原有位置
	raw := []domain.Element{
		{RoomID: roomID, ElementID: "e1", Kind: "path", Data: `{"v":1}`},
		{RoomID: roomID, ElementID: "e2", Kind: "rect", Data: `{"v":1}`},
		{RoomID: roomID, ElementID: "e1", Kind: "path", Data: `{"v":2}`},
	}

	mockCacheRepo.On("GetElements", ctx, roomID).Return(nil, repository.ErrNotFound).Once()
	mockElementRepo.On("FindByRoom", ctx, roomID).Return(raw, nil).Once()

	// 回填发生在独立 goroutine 中，用 WaitGroup 等待它完成
	var warmed sync.WaitGroup
	warmed.Add(1)
	mockCacheRepo.On("SetElements", mock.Anything, roomID, mock.MatchedBy(func(els []domain.Element) bool {
		return len(els) == 2
	}), time.Minute).
		Run(func(mock.Arguments) { warmed.Done() }).
		Return(nil).
		Once()

	// Act
	elements, err := canvasService.LoadCanvas(ctx, roomID)

	// Assert
	require.NoError(t, err)
	require.Len(t, elements, 2, "压缩后同一元素只应出现一次")
	assert.Equal(t, "e1", elements[0].ElementID)
	assert.Equal(t, `{"v":2}`, elements[0].Data, "应保留元素的最新版本")
	assert.Equal(t, "e2", elements[1].ElementID)

	// Verify
	warmed.Wait()
	mockCacheRepo.AssertExpectations(t)
	mockElementRepo.AssertExpectations(t)
}

func TestCanvasService_LoadCanvas_CacheFailureFallsBack(t *testing.T) {
	// Arrange: 缓存故障不应阻塞读取
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)

	mockCacheRepo.On("GetElements", ctx, roomID).Return(nil, errors.New("connection refused")).Once()
	mockElementRepo.On("FindByRoom", ctx, roomID).Return([]domain.Element{}, nil).Once()
	mockCacheRepo.On("SetElements", mock.Anything, roomID, mock.Anything, mock.Anything).Return(nil).Maybe()

	// Act
	elements, err := canvasService.LoadCanvas(ctx, roomID)

	// Assert
	require.NoError(t, err, "缓存故障时应回源数据库")
	assert.Empty(t, elements)
}

func TestCanvasService_LoadCanvas_DatabaseError(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)

	mockCacheRepo.On("GetElements", ctx, roomID).Return(nil, repository.ErrNotFound).Once()
	mockElementRepo.On("FindByRoom", ctx, roomID).Return(nil, errors.New("connection refused")).Once()

	// Act
	_, err := canvasService.LoadCanvas(ctx, roomID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInternalServer))

	// Verify: 数据库失败后不应尝试回填缓存
	mockCacheRepo.AssertNotCalled(t, "SetElements", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- 测试 AppendBatch 方法 ---

func TestCanvasService_AppendBatch_PersistsAndInvalidates(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, mockRoomRepo := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)
	batch := []domain.Element{{RoomID: roomID, ElementID: "e1", Kind: "path", Data: `{"v":1}`}}

	mockElementRepo.On("SaveBatch", ctx, batch).Return(nil).Once()
	mockCacheRepo.On("Invalidate", ctx, roomID).Return(nil).Once()
	mockRoomRepo.On("TouchLastActive", ctx, roomID, mock.Anything).Return(nil).Once()

	// Act
	err := canvasService.AppendBatch(ctx, roomID, batch)

	// Assert
	require.NoError(t, err)

	// Verify
	mockElementRepo.AssertExpectations(t)
	mockCacheRepo.AssertExpectations(t)
	mockRoomRepo.AssertExpectations(t)
}

func TestCanvasService_AppendBatch_EmptyBatchNoop(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, mockRoomRepo := newCanvasService(t)

	// Act
	err := canvasService.AppendBatch(context.Background(), 7, nil)

	// Assert: 空批次不触碰任何依赖
	require.NoError(t, err)
	mockElementRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
	mockCacheRepo.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	mockRoomRepo.AssertNotCalled(t, "TouchLastActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestCanvasService_AppendBatch_SaveFailureReturnsRawError(t *testing.T) {
	// Arrange: 写库失败的错误原样返回，调用方依据它决定是否重排批次
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)
	batch := []domain.Element{{RoomID: roomID, ElementID: "e1"}}
	saveErr := errors.New("connection reset")

	mockElementRepo.On("SaveBatch", ctx, batch).Return(saveErr).Once()

	// Act
	err := canvasService.AppendBatch(ctx, roomID, batch)

	// Assert
	require.Error(t, err)
	assert.Equal(t, saveErr, err)

	// Verify: 写库失败后不应使缓存失效
	mockCacheRepo.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestCanvasService_AppendBatch_InvalidateFailureIgnored(t *testing.T) {
	// Arrange: 追加后的缓存失效是尽力而为
	canvasService, mockElementRepo, mockCacheRepo, mockRoomRepo := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)
	batch := []domain.Element{{RoomID: roomID, ElementID: "e1"}}

	mockElementRepo.On("SaveBatch", ctx, batch).Return(nil).Once()
	mockCacheRepo.On("Invalidate", ctx, roomID).Return(errors.New("connection refused")).Once()
	mockRoomRepo.On("TouchLastActive", ctx, roomID, mock.Anything).Return(nil).Once()

	// Act
	err := canvasService.AppendBatch(ctx, roomID, batch)

	// Assert
	require.NoError(t, err, "缓存失效失败不应影响追加结果")
}

// --- 测试 ClearCanvas 方法 ---

func TestCanvasService_ClearCanvas_Success(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)

	mockElementRepo.On("DeleteByRoom", ctx, roomID).Return(nil).Once()
	mockCacheRepo.On("Invalidate", ctx, roomID).Return(nil).Once()

	// Act
	err := canvasService.ClearCanvas(ctx, roomID)

	// Assert
	require.NoError(t, err)
	mockElementRepo.AssertExpectations(t)
	mockCacheRepo.AssertExpectations(t)
}

func TestCanvasService_ClearCanvas_InvalidateFailureIsError(t *testing.T) {
	// Arrange: 与追加不同，清空后的缓存失效失败按错误处理，
	// 否则后来者会短暂读到已删除的内容
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)

	mockElementRepo.On("DeleteByRoom", ctx, roomID).Return(nil).Once()
	mockCacheRepo.On("Invalidate", ctx, roomID).Return(errors.New("connection refused")).Once()

	// Act
	err := canvasService.ClearCanvas(ctx, roomID)

	// Assert
	require.Error(t, err)
}

func TestCanvasService_ClearCanvas_DeleteFailure(t *testing.T) {
	// Arrange
	canvasService, mockElementRepo, mockCacheRepo, _ := newCanvasService(t)
	ctx := context.Background()
	roomID := uint(7)

	mockElementRepo.On("DeleteByRoom", ctx, roomID).Return(errors.New("connection reset")).Once()

	// Act
	err := canvasService.ClearCanvas(ctx, roomID)

	// Assert
	require.Error(t, err)
	mockCacheRepo.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}
