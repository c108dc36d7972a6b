package dash

import "fmt"

// StreamURL builds the MJPEG stream address served by web_video_server.
// The topic is left unescaped; the server matches it literally.
func StreamURL(cam CameraConfig) string {
	return fmt.Sprintf("http://%s:%d%s?topic=%s&type=ros_compressed&width=%d&height=%d&quality=%d",
		cam.Host, cam.Port, cam.Path, cam.Topic, cam.Width, cam.Height, cam.Quality)
}
