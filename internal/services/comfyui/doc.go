// Package comfyui drives one image generation job against a ComfyUI
// server: open the websocket event channel, submit the workflow graph over
// HTTP, stream execution events until the server signals completion, then
// pull the rendered image out of the job history. The client performs no
// retries of its own; callers that want retry semantics wrap the whole
// sequence in the stage executor.
package comfyui
