package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender uses notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=cafenote", title, message).Run()
}

// MacOSNotificationSender uses osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender uses a PowerShell toast
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastTemplateType]::ToastText02
		$xml = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent($template)
		$text = $xml.GetElementsByTagName("text")
		$text.Item(0).AppendChild($xml.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($xml.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($xml)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("cafenote").Show($toast)
	`, psQuote(title), psQuote(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// PlatformSender picks the sender for the running OS, or nil when unsupported
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier echoes run outcomes to the console and, when available, the desktop
type Notifier struct {
	sender  NotificationSender
	console *Console
}

// NewNotifier creates a Notifier. A nil sender prints to the console only.
func NewNotifier(sender NotificationSender, console *Console) *Notifier {
	if console == nil {
		console = NewConsole(nil)
	}
	return &Notifier{sender: sender, console: console}
}

// Notify sends an informational notification
func (n *Notifier) Notify(title, message string) {
	n.console.Printf("\n%s: %s\n", Cyan(title), Yellow(message))
	n.desktop(title, message)
}

// Error sends a failure notification
func (n *Notifier) Error(title, message string) {
	n.console.Printf("\n%s: %s\n", Red(title), Red(message))
	n.desktop(title, message)
}

// Success sends a success notification
func (n *Notifier) Success(title, message string) {
	n.console.Printf("\n%s: %s\n", Green(title), Green(message))
	n.desktop(title, message)
}

func (n *Notifier) desktop(title, message string) {
	if n.sender == nil {
		return
	}
	// desktop notifications are best effort
	_ = n.sender.Send(title, message)
}
