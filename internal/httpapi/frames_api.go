package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"serial-gateway/internal/recorder"
)

// ==================== 响应结构 ====================

// Response 统一的 API 响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// writeJSON 写入 JSON 响应
func writeJSON(writer http.ResponseWriter, statusCode int, response Response) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(response)
}

// writeSuccess 写入成功响应
func writeSuccess(writer http.ResponseWriter, data interface{}) {
	writeJSON(writer, http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// writeError 写入错误响应
func writeError(writer http.ResponseWriter, message string, statusCode int) {
	writeJSON(writer, statusCode, Response{
		Code:    statusCode,
		Message: message,
		Data:    nil,
	})
}

// ==================== Frames Handler ====================

// FramesHandler 帧流量查询处理器
type FramesHandler struct {
	store *recorder.RedisStore
}

// NewFramesHandler 创建帧查询处理器
func NewFramesHandler(store *recorder.RedisStore) *FramesHandler {
	return &FramesHandler{
		store: store,
	}
}

// HandleQuery 处理帧记录查询请求
// GET /v1/frames?limit=50 或 GET /v1/frames?kind=transitions
func (handler *FramesHandler) HandleQuery(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := parseLimit(request.URL.Query().Get("limit"))

	if request.URL.Query().Get("kind") == "transitions" {
		handler.handleTransitionQuery(writer, request, limit)
		return
	}

	frames, err := handler.store.RecentFrames(request.Context(), limit)
	if err != nil {
		writeError(writer, "查询帧记录失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, map[string]interface{}{
		"count":  len(frames),
		"frames": frames,
	})
}

// HandleStats 处理帧统计查询请求
// GET /v1/frames/stats
func (handler *FramesHandler) HandleStats(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := handler.store.QueryStats(request.Context())
	if err != nil {
		writeError(writer, "查询帧统计失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, stats)
}

// ==================== 查询处理 ====================

// handleTransitionQuery 处理连接状态变更查询
func (handler *FramesHandler) handleTransitionQuery(
	writer http.ResponseWriter,
	request *http.Request,
	limit int64,
) {
	transitions, err := handler.store.RecentTransitions(request.Context(), limit)
	if err != nil {
		writeError(writer, "查询状态变更失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, map[string]interface{}{
		"count":       len(transitions),
		"transitions": transitions,
	})
}

// ==================== 工具函数 ====================

// parseLimit 解析查询条数参数，非法值回落到 0 由存储层取默认
func parseLimit(raw string) int64 {
	if raw == "" {
		return 0
	}

	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
