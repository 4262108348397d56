// Package agent 实现终端购物助手的对话循环：读取用户输入，携带系统提示词与
// 工具调用大模型，并把最终回复写回会话记录。
package agent
