package main

import (
	"log"
	"net/http"

	"serial-gateway/internal/httpapi"
	"serial-gateway/internal/serialconn"
	"serial-gateway/internal/utils"

	"github.com/gin-gonic/gin"
)

//
// 数据模型定义
//

// UnifiedResponse 统一的 API 响应格式
type UnifiedResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data,omitempty"`
	Msg  string      `json:"msg"`
}

// SendFrameRequest 串口发送请求
// Payload 为 Hex 编码的帧内容,允许空格分隔
type SendFrameRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// SetPortRequest 串口参数变更请求
// 未提供的字段沿用当前配置
type SetPortRequest struct {
	PortName string `json:"port_name" binding:"required"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	Parity   string `json:"parity"`
	StopBits string `json:"stop_bits"`
}

//
// 辅助函数 - 响应处理
//

// sendSuccessResponse 发送成功响应
func sendSuccessResponse(context *gin.Context, data interface{}) {
	context.JSON(http.StatusOK, UnifiedResponse{
		Code: http.StatusOK,
		Data: data,
		Msg:  "success",
	})
}

// sendErrorResponse 发送错误响应
func sendErrorResponse(context *gin.Context, httpStatus int, message string) {
	context.JSON(httpStatus, UnifiedResponse{
		Code: httpStatus,
		Data: nil,
		Msg:  message,
	})
}

//
// 中间件
//

// corsMiddleware 跨域资源共享中间件
// 允许所有来源访问,便于前端开发和集成
// 生产环境建议根据需求配置白名单
func corsMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header("Access-Control-Allow-Origin", "*")
		context.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		context.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if context.Request.Method == "OPTIONS" {
			context.AbortWithStatus(http.StatusNoContent)
			return
		}

		context.Next()
	}
}

//
// 处理器 - 串口控制相关
//

// SerialHandler 串口控制处理器
type SerialHandler struct {
	app *AppContext
}

// NewSerialHandler 创建串口控制处理器实例
func NewSerialHandler(app *AppContext) *SerialHandler {
	return &SerialHandler{app: app}
}

// handleStatus 查询串口连接状态
func (handler *SerialHandler) handleStatus(context *gin.Context) {
	sendSuccessResponse(context, handler.app.Conn.Snapshot())
}

// handleConnect 建立串口连接
// 返回本次调用后的连接状态,失败时看护循环会继续重试
func (handler *SerialHandler) handleConnect(context *gin.Context) {
	connected := handler.app.Conn.Connect()

	sendSuccessResponse(context, map[string]interface{}{
		"connected": connected,
	})
}

// handleDisconnect 断开串口连接
func (handler *SerialHandler) handleDisconnect(context *gin.Context) {
	handler.app.Conn.Disconnect()

	sendSuccessResponse(context, map[string]interface{}{
		"connected": false,
	})
}

// handleSend 发送一帧数据到串口
func (handler *SerialHandler) handleSend(context *gin.Context) {
	var request SendFrameRequest

	if err := context.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(context, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	payload, err := utils.HexToBytes(request.Payload)
	if err != nil {
		sendErrorResponse(context, http.StatusBadRequest, "Hex 解析失败: "+err.Error())
		return
	}

	if len(payload) == 0 {
		sendErrorResponse(context, http.StatusBadRequest, "帧内容不能为空")
		return
	}

	if !handler.app.Sender.SendMessage(payload) {
		sendErrorResponse(context, http.StatusServiceUnavailable, "串口写入失败")
		return
	}

	sendSuccessResponse(context, map[string]interface{}{
		"sent": len(payload),
	})
}

// handleSetPort 变更串口参数
// 参数在下一次打开串口时生效,串口标识变化会触发重连
func (handler *SerialHandler) handleSetPort(context *gin.Context) {
	var request SetPortRequest

	if err := context.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(context, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	portConfig, err := handler.buildPortConfig(request)
	if err != nil {
		sendErrorResponse(context, http.StatusBadRequest, err.Error())
		return
	}

	handler.app.Conn.SetPort(portConfig)
	log.Printf("[SerialHandler] 串口参数已更新 port=%s baud=%d", portConfig.PortName, portConfig.BaudRate)

	sendSuccessResponse(context, map[string]interface{}{
		"port_name": portConfig.PortName,
		"baud_rate": portConfig.BaudRate,
	})
}

// buildPortConfig 合并请求参数和当前配置
func (handler *SerialHandler) buildPortConfig(request SetPortRequest) (serialconn.PortConfig, error) {
	serialConfig := handler.app.Config.Serial

	if request.BaudRate <= 0 {
		request.BaudRate = serialConfig.BaudRate
	}
	if request.DataBits == 0 {
		request.DataBits = serialConfig.DataBits
	}
	if request.Parity == "" {
		request.Parity = serialConfig.Parity
	}
	if request.StopBits == "" {
		request.StopBits = serialConfig.StopBits
	}

	parity, err := serialconn.ParseParity(request.Parity)
	if err != nil {
		return serialconn.PortConfig{}, err
	}

	stopBits, err := serialconn.ParseStopBits(request.StopBits)
	if err != nil {
		return serialconn.PortConfig{}, err
	}

	return serialconn.PortConfig{
		PortName: request.PortName,
		BaudRate: request.BaudRate,
		DataBits: request.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

//
// 路由构建主函数
//

// BuildGinRouter 构建 Gin 路由器
// 集中管理所有 HTTP 路由
func BuildGinRouter(app *AppContext) *gin.Engine {
	router := gin.Default()

	// 应用全局中间件
	router.Use(corsMiddleware())

	serialHandler := NewSerialHandler(app)

	// API v1 路由组
	apiV1 := router.Group("/v1")
	{
		registerSerialRoutes(apiV1, serialHandler)
		registerFrameRoutes(apiV1, app)
	}

	return router
}

// registerSerialRoutes 注册串口控制路由
func registerSerialRoutes(group *gin.RouterGroup, handler *SerialHandler) {
	group.GET("/serial/status", handler.handleStatus)
	group.POST("/serial/connect", handler.handleConnect)
	group.POST("/serial/disconnect", handler.handleDisconnect)
	group.POST("/serial/send", handler.handleSend)
	group.POST("/serial/port", handler.handleSetPort)
}

// registerFrameRoutes 注册帧流量查询路由
func registerFrameRoutes(group *gin.RouterGroup, app *AppContext) {
	framesHandler := httpapi.NewFramesHandler(app.Recorder)

	group.GET("/frames", gin.WrapF(framesHandler.HandleQuery))
	group.GET("/frames/stats", gin.WrapF(framesHandler.HandleStats))
}
